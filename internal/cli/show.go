package cli

import (
	"fmt"
)

func (a *App) ShowStatus() {
	if a.coord.SessionKey() == "" {
		fmt.Println("No active session")
		return
	}

	t := a.coord.Summary()
	fmt.Printf("Session %s: %d succeeded, %d failed, %d pending, %d%% total\n",
		a.coord.SessionKey(), t.Succeeded, t.Failed, t.Pending, t.TotalProgress)
}

func (a *App) ListItems() {
	items := a.coord.Items()
	if len(items) == 0 {
		fmt.Println("No items")
		return
	}

	for _, it := range items {
		line := fmt.Sprintf("%s  %-11s %3d%%  attempt %d  %s", it.ID, it.Status, it.Progress, it.Attempt, it.Source.Name)
		if it.RemoteURL != "" {
			line += "  " + it.RemoteURL
		}
		if it.Error != "" {
			line += "  [" + it.Error + "]"
		}
		fmt.Println(line)
	}
}
