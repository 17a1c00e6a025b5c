package pathsec

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// promptConfirm warns about a sensitive file on stderr and reads a yes/no
// answer from stdin. Anything but an explicit yes declines.
func promptConfirm(filename string) bool {
	fmt.Fprintf(os.Stderr, "WARNING: '%s' appears to be a sensitive file\n", filename)
	fmt.Fprint(os.Stderr, "Include this file? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
