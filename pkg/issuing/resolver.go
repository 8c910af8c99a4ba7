package issuing

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/velocitycareerlabs/data-loader/pkg/disclosure"
)

// maxSelectable bounds how many existing disclosures the prompt lists.
const maxSelectable = 10

// A DisclosureResolver decides which disclosure a run issues against,
// given the disclosures already tagged for integrated issuing
// identification on the tenant. Returning nil means prepare a fresh one.
type DisclosureResolver interface {
	Resolve(existing []disclosure.Request) (*disclosure.Request, error)
}

// UseExisting resolves to the disclosure with the given id, failing when
// the tenant has no such disclosure.
func UseExisting(id string) DisclosureResolver {
	return useExisting(id)
}

type useExisting string

func (u useExisting) Resolve(existing []disclosure.Request) (*disclosure.Request, error) {
	for i := range existing {
		if existing[i].ID == string(u) {
			return &existing[i], nil
		}
	}
	return nil, errors.New("existing disclosure not found")
}

// CreateNew always resolves to a fresh disclosure.
func CreateNew() DisclosureResolver {
	return createNew{}
}

type createNew struct{}

func (createNew) Resolve([]disclosure.Request) (*disclosure.Request, error) {
	return nil, nil
}

// PromptUser resolves interactively: confirm starting fresh when nothing
// exists, otherwise choose between reuse and a new disclosure.
func PromptUser(in io.Reader, out io.Writer) DisclosureResolver {
	return &terminalResolver{in: bufio.NewScanner(in), out: out}
}

type terminalResolver struct {
	in  *bufio.Scanner
	out io.Writer
}

func (t *terminalResolver) Resolve(existing []disclosure.Request) (*disclosure.Request, error) {
	if len(existing) == 0 {
		if t.confirm("No existing disclosures found. Create a new one? [y/N] ") {
			return nil, nil
		}
		return nil, errors.New("aborted: no disclosure selected")
	}

	if !t.confirm(fmt.Sprintf("Found %d existing disclosure(s). Reuse one? [y/N] ", len(existing))) {
		return nil, nil
	}

	n := len(existing)
	if n > maxSelectable {
		n = maxSelectable
	}
	for i := 0; i < n; i++ {
		d := existing[i]
		fmt.Fprintf(t.out, "  %d) %s %s (created for %s)\n", i+1, d.ID, d.Label, d.VendorDisclosureID)
	}
	fmt.Fprintf(t.out, "Select a disclosure [1-%d]: ", n)

	choice, err := t.readLine()
	if err != nil {
		return nil, err
	}
	idx, err := strconv.Atoi(strings.TrimSpace(choice))
	if err != nil || idx < 1 || idx > n {
		return nil, fmt.Errorf("invalid selection %q", strings.TrimSpace(choice))
	}
	return &existing[idx-1], nil
}

func (t *terminalResolver) confirm(prompt string) bool {
	fmt.Fprint(t.out, prompt)
	line, err := t.readLine()
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (t *terminalResolver) readLine() (string, error) {
	if !t.in.Scan() {
		if err := t.in.Err(); err != nil {
			return "", err
		}
		return "", errors.New("input closed")
	}
	return t.in.Text(), nil
}
