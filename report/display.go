package report

import (
	"fmt"

	"github.com/pterm/pterm"
)

var (
	SuccessColorFG = pterm.FgLightGreen
	SuccessStyleBG = pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack)
	WarnColorFG    = pterm.FgYellow
	WarnStyleBG    = pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	ErrorColorFG   = pterm.FgRed
	ErrorStyleBG   = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	InfoColorFG    = SuccessColorFG
	InfoStyleBG    = SuccessStyleBG
)

// displayError prints an error to the console.  Type faults get a banner with
// their kind; everything else is printed as a plain error line.
func displayError(err error) {
	if tf, ok := err.(*TypeFault); ok {
		fmt.Print("\n-- ")
		ErrorStyleBG.Print(faultKindStrings[tf.Kind] + " Error")
		fmt.Printf(" (%s)\n", tf.Loc)
		fmt.Println(tf.Message)

		for _, typ := range tf.Types {
			ErrorColorFG.Println("  " + typ)
		}

		return
	}

	ErrorStyleBG.Print("Error")
	ErrorColorFG.Println(" " + err.Error())
}

func displayWarning(msg string) {
	WarnStyleBG.Print("Warning")
	WarnColorFG.Println(" " + msg)
}

func displayInfo(tag, msg string) {
	InfoStyleBG.Print(tag)
	InfoColorFG.Println(" " + msg)
}
