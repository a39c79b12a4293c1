package cli

import (
	"context"
	"fmt"
	"log"
)

func (a *App) Cancel(ctx context.Context) {
	if err := a.coord.CancelAll(ctx); err != nil {
		log.Printf("%v", err)
		return
	}
	fmt.Println("Canceled remaining items")
}

func (a *App) Retry(ctx context.Context) {
	go func() {
		if err := a.coord.RetryFailed(ctx); err != nil {
			log.Printf("retry error: %v", err)
			return
		}
		t := a.coord.Summary()
		log.Printf("Retry finished: %d succeeded, %d failed", t.Succeeded, t.Failed)
	}()
}

func (a *App) ClearSession(ctx context.Context) {
	if err := a.coord.Clear(ctx); err != nil {
		log.Printf("%v", err)
		return
	}
	fmt.Println("Session cleared")
}
