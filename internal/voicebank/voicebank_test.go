package voicebank

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"

	"github.com/tphakala/wsynth-go/internal/errors"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

func zipBytes(t *testing.T, files map[string]string, nonUTF8 bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, NonUTF8: nonUTF8})
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "teto")
	writeFiles(t, dir, map[string]string{
		"oto.ini":       "ka.wav=ka,0,100,0,50,20",
		"prefix.map":    "C4\t\t\n",
		"character.txt": "name=Kasane Teto\nimage=icon.bmp\nauthor = someone\nnot a pair\n",
		"ka.wav":        "RIFFka",
		"sub/sa.WAV":    "RIFFsa",
		"readme.txt":    "ignored",
	})

	vb, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "Kasane Teto", vb.Name)
	assert.Equal(t, "icon.bmp", vb.Image)
	assert.Equal(t, "someone", vb.CharacterInfo["author"])
	assert.Equal(t, []byte("ka.wav=ka,0,100,0,50,20"), vb.ReferenceData)
	assert.NotNil(t, vb.PrefixMap)
	require.Len(t, vb.Waveforms, 2)
	assert.Equal(t, "ka.wav", vb.Waveforms[0].Name)
	assert.Equal(t, "sub/sa.WAV", vb.Waveforms[1].Name)
	assert.NotEmpty(t, vb.ID)

	jobs := vb.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "ka.wav", jobs[0].SourceID)
	assert.Equal(t, []byte("RIFFka"), jobs[0].Samples)

	info := vb.Info()
	assert.Equal(t, vb.ID, info.ID)
	assert.Equal(t, 2, info.Files)
}

func TestLoadDir_NameFallsBackToDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "plainbank")
	writeFiles(t, dir, map[string]string{"oto.ini": "", "a.wav": "x"})

	vb, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "plainbank", vb.Name)
	assert.Nil(t, vb.PrefixMap, "absent prefix map stays nil")
	assert.Empty(t, vb.Image)
}

func TestLoadZip_NestedRoot(t *testing.T) {
	t.Parallel()

	data := zipBytes(t, map[string]string{
		"Bank/oto.ini":         "oto",
		"Bank/a.wav":           "a",
		"Bank/A4/oto.ini":      "pitch oto",
		"Bank/A4/b.wav":        "b",
		"outside.wav":          "not part of the bank",
		"__MACOSX/Bank/._a.wav": "resource fork",
	}, false)

	vb, err := LoadZip("/tmp/bank.zip", data)
	require.NoError(t, err)
	assert.Equal(t, "bank", vb.Name)
	assert.Equal(t, []byte("oto"), vb.ReferenceData)

	names := make([]string, 0, len(vb.Waveforms))
	for _, w := range vb.Waveforms {
		names = append(names, w.Name)
	}
	assert.Equal(t, []string{"A4/b.wav", "a.wav"}, names)
}

func TestLoadZip_ShiftJISNames(t *testing.T) {
	t.Parallel()

	enc := japanese.ShiftJIS.NewEncoder()
	wavName, err := enc.String("あ.wav")
	require.NoError(t, err)
	character, err := enc.String("name=重音テト\n")
	require.NoError(t, err)

	data := zipBytes(t, map[string]string{
		"oto.ini":       "oto",
		"character.txt": character,
		wavName:         "a",
	}, true)

	vb, err := LoadZip("teto.zip", data)
	require.NoError(t, err)
	assert.Equal(t, "重音テト", vb.Name)
	require.Len(t, vb.Waveforms, 1)
	assert.Equal(t, "あ.wav", vb.Waveforms[0].Name)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.wav": "x"})
	_, err = Load(dir)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLibraryLoad))
	assert.Contains(t, err.Error(), "oto.ini")

	notZip := filepath.Join(t.TempDir(), "bank.zip")
	require.NoError(t, os.WriteFile(notZip, []byte("not a zip"), 0o600))
	_, err = Load(notZip)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
}

func TestDecodeText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "name=a", DecodeText([]byte("\xef\xbb\xbfname=a")))
	sjis, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte("テト"))
	require.NoError(t, err)
	assert.Equal(t, "テト", DecodeText(sjis))
}

func TestParseCharacterInfo(t *testing.T) {
	t.Parallel()

	info := ParseCharacterInfo([]byte("Name=Teto\r\nIMAGE = face.bmp\n=orphan\nweb=http://a=b\n"))
	assert.Equal(t, "Teto", info["name"])
	assert.Equal(t, "face.bmp", info["image"])
	assert.Equal(t, "http://a=b", info["web"])
	assert.NotContains(t, info, "")
}
