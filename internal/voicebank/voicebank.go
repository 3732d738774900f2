// Package voicebank reads a voicebank from a directory or zip archive into
// raw bytes: reference data (oto.ini), the optional prefix map, the
// character description and every waveform file. The engine parses all of
// it; this package only locates and reads files.
package voicebank

import (
	"bufio"
	"bytes"
	"path"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/japanese"

	"github.com/tphakala/wsynth-go/internal/analysis"
	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
	"github.com/tphakala/wsynth-go/internal/state"
)

// Well-known voicebank file names, matched case-insensitively.
const (
	ReferenceDataFile = "oto.ini"
	PrefixMapFile     = "prefix.map"
	CharacterFile     = "character.txt"
)

// MaxFileSize bounds any single file read from a voicebank.
const MaxFileSize = 256 << 20

// File is one waveform file. Name is relative to the voicebank root, with
// forward slashes, as oto.ini refers to it.
type File struct {
	Name string
	Data []byte
}

// Voicebank is a fully read voicebank.
type Voicebank struct {
	ID            string
	Name          string
	Source        string // directory or archive path
	ReferenceData []byte
	PrefixMap     []byte // nil when the voicebank has none
	CharacterInfo map[string]string
	Image         string // image path relative to the root, from character.txt
	Waveforms     []File // sorted by Name
}

// Jobs returns one analysis job per waveform file.
func (vb *Voicebank) Jobs() []analysis.Job {
	jobs := make([]analysis.Job, len(vb.Waveforms))
	for i, f := range vb.Waveforms {
		jobs[i] = analysis.Job{SourceID: f.Name, Samples: f.Data}
	}
	return jobs
}

// Info returns the state description of the voicebank.
func (vb *Voicebank) Info() *state.VoicebankInfo {
	return &state.VoicebankInfo{
		ID:            vb.ID,
		Name:          vb.Name,
		Image:         vb.Image,
		CharacterInfo: vb.CharacterInfo,
		Files:         len(vb.Waveforms),
	}
}

// entry is one file found in a directory tree or archive.
type entry struct {
	name string // slash-separated path from the source root
	read func() ([]byte, error)
}

// assemble builds a voicebank from the files of a source. The voicebank root
// is the directory of the shallowest oto.ini.
func assemble(source, fallbackName string, entries []entry) (*Voicebank, error) {
	root, ok := findRoot(entries)
	if !ok {
		return nil, errors.Newf("%s not found in voicebank", ReferenceDataFile).
			Component("voicebank").
			Category(errors.CategoryLibraryLoad).
			Context("source", source).
			Context("files", len(entries)).
			Build()
	}

	vb := &Voicebank{Source: source, Name: fallbackName}
	for _, e := range entries {
		rel, ok := relativeTo(root, e.name)
		if !ok {
			continue
		}

		var target *[]byte
		isWave := false
		switch strings.ToLower(rel) {
		case ReferenceDataFile:
			target = &vb.ReferenceData
		case PrefixMapFile:
			target = &vb.PrefixMap
		case CharacterFile:
			data, err := readEntry(source, e)
			if err != nil {
				return nil, err
			}
			vb.CharacterInfo = ParseCharacterInfo(data)
			continue
		default:
			isWave = strings.EqualFold(path.Ext(rel), ".wav")
		}
		if target == nil && !isWave {
			continue
		}

		data, err := readEntry(source, e)
		if err != nil {
			return nil, err
		}
		if isWave {
			vb.Waveforms = append(vb.Waveforms, File{Name: rel, Data: data})
		} else {
			*target = data
		}
	}

	if name := vb.CharacterInfo["name"]; name != "" {
		vb.Name = name
	}
	vb.Image = vb.CharacterInfo["image"]
	vb.ID = uuid.NewSHA1(uuid.NameSpaceOID, vb.ReferenceData).String()
	slices.SortFunc(vb.Waveforms, func(a, b File) int { return strings.Compare(a.Name, b.Name) })

	GetLogger().Info("voicebank read",
		logger.String("name", vb.Name),
		logger.String("source", source),
		logger.Int("waveforms", len(vb.Waveforms)),
		logger.Bool("prefix_map", vb.PrefixMap != nil))
	return vb, nil
}

// findRoot returns the directory of the shallowest oto.ini.
func findRoot(entries []entry) (string, bool) {
	best, depth := "", -1
	for _, e := range entries {
		if !strings.EqualFold(path.Base(e.name), ReferenceDataFile) {
			continue
		}
		d := strings.Count(e.name, "/")
		if depth < 0 || d < depth {
			best, depth = path.Dir(e.name), d
		}
	}
	return best, depth >= 0
}

// relativeTo returns name relative to root, if it is inside root.
func relativeTo(root, name string) (string, bool) {
	if root == "." {
		return name, true
	}
	prefix := root + "/"
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	return strings.TrimPrefix(name, prefix), true
}

func readEntry(source string, e entry) ([]byte, error) {
	data, err := e.read()
	if err != nil {
		return nil, errors.New(err).
			Component("voicebank").
			Category(errors.CategoryFileIO).
			Context("source", source).
			Context("file", e.name).
			Build()
	}
	return data, nil
}

// ParseCharacterInfo parses key=value lines from character.txt. Keys are
// lower-cased. Shift_JIS input, common in older voicebanks, is converted to
// UTF-8.
func ParseCharacterInfo(data []byte) map[string]string {
	text := DecodeText(data)
	info := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		info[key] = strings.TrimSpace(value)
	}
	return info
}

// DecodeText returns data as UTF-8 text, stripping a byte order mark and
// decoding Shift_JIS when data is not valid UTF-8.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(decoded)
}

// GetLogger returns the voicebank package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("voicebank")
}
