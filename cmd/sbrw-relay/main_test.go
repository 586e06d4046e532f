package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"sbrw-mp-go/pkg/capture"
	"sbrw-mp-go/pkg/log"
)

func TestParseTimeSpec(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ts, err := parseTimeSpec("90m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-90*time.Minute), ts)

	ts, err = parseTimeSpec("2024-04-30T10:00:00Z", now)
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2024, 4, 30, 10, 0, 0, 0, time.UTC)))

	ts, err = parseTimeSpec("2024-04-30", now)
	require.NoError(t, err)
	assert.Equal(t, 30, ts.Day())

	_, err = parseTimeSpec("yesterday", now)
	assert.Error(t, err)
}

func raceDatagram() []byte {
	return []byte{
		0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09,
		0x02, 0x03, 0x41, 0x42, 0x43,
		0x07, 0x01, 0x00,
		0x12, 0x04, 0xaa, 0xbb, 0xcc, 0xdd,
		0xff,
		0xde, 0xad, 0xbe, 0xef,
	}
}

func TestInspectDatagram(t *testing.T) {
	var out bytes.Buffer
	d := capture.Datagram{Time: time.Unix(1700000000, 0), Source: "10.0.0.1:1234", Data: raceDatagram()}
	inspectDatagram(&out, 1, d, 0x0102)

	got := out.String()
	assert.Contains(t, got, "from 10.0.0.1:1234, 29 bytes")
	assert.Contains(t, got, "header      00010203040506070809")
	assert.Contains(t, got, "@10  PlayerInfo 0x02 len 3   414243")
	assert.Contains(t, got, "@15  Unknown    0x07 len 1   00")
	assert.Contains(t, got, "@18  CarState   0x12 len 4   aabbccdd")
	assert.Contains(t, got, "ok=true player-info=true car-state=true")
	assert.Contains(t, got, "player      00010203040506070809020341424312040102ccdd01020304")
	assert.Contains(t, got, "state-pos   12040102ccdd")
	assert.Contains(t, got, "car-state   000102030405060708091204aabbccdd01020304")
}

func TestInspectDatagramErrors(t *testing.T) {
	var out bytes.Buffer
	inspectDatagram(&out, 2, capture.Datagram{Source: "x", Data: []byte{1, 2, 3}}, 0)
	assert.Contains(t, out.String(), "error: packet too small")
}

func TestPrintLogs(t *testing.T) {
	entries := []log.LogEntry{
		{ID: 1, LogData: `{"level":"info","time":"2024-05-01T12:00:00Z","peer":"10.0.0.1:1","message":"peer joined"}`},
		{ID: 2, LogData: `not json`},
	}

	var raw bytes.Buffer
	require.NoError(t, printLogs(&raw, entries, false))
	lines := strings.Split(strings.TrimSpace(raw.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, entries[0].LogData, lines[0])

	var pretty bytes.Buffer
	require.NoError(t, printLogs(&pretty, entries, true))
	assert.Contains(t, pretty.String(), "peer joined")
	assert.Contains(t, pretty.String(), "peer=10.0.0.1:1")
	assert.Contains(t, pretty.String(), "not json")
}

func TestInspectCaptureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "race.cap")
	rec, err := capture.CreateRecorder(path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, rec.Record(capture.Datagram{Time: time.Now(), Source: "10.0.0.1:1", Data: raceDatagram()}))
	}
	require.NoError(t, rec.Close())

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run([]string{"sbrw-relay", "inspect", "--capture", path, "-n", "2"}))
	assert.Contains(t, out.String(), "#2 ")
	assert.NotContains(t, out.String(), "#3 ")
	assert.Contains(t, out.String(), "2 datagram(s)")
}

func TestLogsDBFileDefaultIsLazy(t *testing.T) {
	var dbfile *cli.StringFlag
	for _, f := range logsCommand.Flags {
		if sf, ok := f.(*cli.StringFlag); ok && sf.Name == "dbfile" {
			dbfile = sf
		}
	}
	require.NotNil(t, dbfile)
	assert.Empty(t, dbfile.Value, "resolving the default creates the app dir")
	assert.NotEmpty(t, dbfile.DefaultText)

	app := newApp()
	app.Writer = &bytes.Buffer{}
	app.ExitErrHandler = func(*cli.Context, error) {}
	missing := filepath.Join(t.TempDir(), "missing.db")
	err := app.Run([]string{"sbrw-relay", "logs", "-f", missing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
