package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dmitrijs2005/mediaup/internal/models"
	"github.com/dmitrijs2005/mediaup/internal/upload"
)

func (a *App) getStatus() string {
	key := a.coord.SessionKey()
	if key == "" {
		return ""
	}
	if len(key) > 8 {
		key = key[:8]
	}
	return fmt.Sprintf("(%s)", key)
}

func (a *App) Root(ctx context.Context) {

	log.Println("Welcome to mediaup (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	a.coord.Subscribe(func(e upload.Event) {
		switch e.Status {
		case models.StatusSucceeded, models.StatusFailed, models.StatusAborted:
			log.Printf("%s: %s %s", e.ItemID, e.Status, e.Error)
		case models.StatusRetrying:
			log.Printf("%s: retrying after attempt %d: %s", e.ItemID, e.Attempt, e.Error)
		}
	})

	for {
		fmt.Printf("mediaup %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Available commands: new <file>..., add <file>, start, resume <key>, status, list, cancel, retry, clear, exit")

		case "new":
			a.NewSession(ctx, args)

		case "add":
			a.AddFile(ctx, args)

		case "start":
			a.StartSession(ctx)

		case "resume":
			a.ResumeSession(ctx, args)

		case "status":
			a.ShowStatus()

		case "list":
			a.ListItems()

		case "cancel":
			a.Cancel(ctx)

		case "retry":
			a.Retry(ctx)

		case "clear":
			a.ClearSession(ctx)

		case "exit":
			return

		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
}
