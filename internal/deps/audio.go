package deps

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"buttonrec/internal/config"
)

// DefaultProcRoot is where the kernel lists ALSA sound cards.
const DefaultProcRoot = "/proc/asound"

// AudioRequirements lists the configured capture and encode executables.
func AudioRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "Capture",
			Command:     cfg.CaptureBinary(),
			Description: "Reads raw PCM from the audio device",
		},
		{
			Name:        "Encoder",
			Command:     cfg.EncodeBinary(),
			Description: "Encodes PCM into the recording file",
		},
	}
}

// SoundCard is one entry of /proc/asound/cards.
type SoundCard struct {
	Index int
	ID    string
	Name  string
}

// ListSoundCards parses the ALSA card list under procRoot. A missing list
// means no cards and is not an error.
func ListSoundCards(procRoot string) ([]SoundCard, error) {
	if procRoot == "" {
		procRoot = DefaultProcRoot
	}
	f, err := os.Open(filepath.Join(procRoot, "cards"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open sound card list: %w", err)
	}
	defer f.Close()

	// Entries look like " 1 [Device         ]: USB-Audio - USB PnP Sound Device"
	// followed by an indented detail line.
	var cards []SoundCard
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		open := strings.Index(line, "[")
		closing := strings.Index(line, "]")
		if open < 0 || closing < open {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSpace(line[:open]))
		if err != nil {
			continue
		}
		card := SoundCard{Index: index, ID: strings.TrimSpace(line[open+1 : closing])}
		if _, rest, ok := strings.Cut(line[closing+1:], " - "); ok {
			card.Name = strings.TrimSpace(rest)
		}
		cards = append(cards, card)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sound card list: %w", err)
	}
	return cards, nil
}

// SoundCardStatus summarises the card list as a dependency status.
func SoundCardStatus(procRoot string) Status {
	status := Status{Name: "Sound card", Command: "/proc/asound/cards", Description: "ALSA capture device"}
	cards, err := ListSoundCards(procRoot)
	switch {
	case err != nil:
		status.Detail = err.Error()
	case len(cards) == 0:
		status.Detail = "no sound cards detected"
	default:
		status.Available = true
		names := make([]string, len(cards))
		for i, c := range cards {
			names[i] = fmt.Sprintf("%d:%s", c.Index, c.ID)
		}
		status.Detail = strings.Join(names, ", ")
	}
	return status
}
