package cli

import (
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/mediaup/internal/models"
)

// sourceFromPath stats the file and derives its MIME type from the
// extension; the compression policy also understands bare extensions, so
// an unknown type falls back to the extension itself.
func sourceFromPath(path string) (models.SourceFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.SourceFile{}, fmt.Errorf("stat %s: %w", path, err)
	}

	ext := filepath.Ext(path)
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		mimeType = ext
	}

	return models.SourceFile{
		Name: filepath.Base(path),
		Path: path,
		Size: info.Size(),
		MIME: mimeType,
	}, nil
}

func (a *App) NewSession(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		fmt.Println("Usage: new <file> [<file>...]")
		return
	}

	var files []models.SourceFile
	for _, p := range paths {
		src, err := sourceFromPath(p)
		if err != nil {
			log.Printf("%v", err)
			return
		}
		files = append(files, src)
	}

	key, err := a.coord.NewSession(ctx, files)
	if err != nil {
		log.Printf("%v", err)
		return
	}
	fmt.Printf("Session %s created with %d item(s)\n", key, len(files))
}

func (a *App) AddFile(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: add <file>")
		return
	}

	src, err := sourceFromPath(args[0])
	if err != nil {
		log.Printf("%v", err)
		return
	}

	id, err := a.coord.Add(ctx, src)
	if err != nil {
		log.Printf("%v", err)
		return
	}
	fmt.Printf("Added %s as %s\n", src.Name, id)
}

// StartSession runs the batch in the background so the prompt stays
// responsive for status and cancel while uploads are in flight.
func (a *App) StartSession(ctx context.Context) {
	go func() {
		if err := a.coord.Start(ctx); err != nil {
			log.Printf("session error: %v", err)
			return
		}
		t := a.coord.Summary()
		log.Printf("Session finished: %d succeeded, %d failed", t.Succeeded, t.Failed)
	}()
}

func (a *App) ResumeSession(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: resume <session-key>")
		return
	}
	key := args[0]

	go func() {
		if err := a.coord.Resume(ctx, key); err != nil {
			log.Printf("resume error: %v", err)
			return
		}
		t := a.coord.Summary()
		log.Printf("Session resumed and finished: %d succeeded, %d failed", t.Succeeded, t.Failed)
	}()
}
