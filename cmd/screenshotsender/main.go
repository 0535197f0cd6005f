package main

import "github.com/bryanchriswhite/ScreenShotSender/cmd/screenshotsender/commands"

func main() {
	commands.Execute()
}
