package relay_test

import (
	"bytes"
	"encoding/hex"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/srg/ptyx/internal/testutils"
)

type scenario struct {
	Name      string `yaml:"name"`
	Input     string `yaml:"input"`
	InputHex  string `yaml:"input_hex"`
	Repeat    int    `yaml:"repeat"`
	ChunkSize int    `yaml:"chunk_size"`
}

type scenarioFile struct {
	Scenarios []scenario `yaml:"scenarios"`
}

func (sc *scenario) payload() ([]byte, error) {
	data := []byte(sc.Input)
	if sc.InputHex != "" {
		var err error
		if data, err = hex.DecodeString(sc.InputHex); err != nil {
			return nil, err
		}
	}
	repeat := sc.Repeat
	if repeat <= 1 {
		return data, nil
	}
	return bytes.Repeat(data, repeat), nil
}

// TestScenarios runs every byte-stream scenario from the YAML table in
// both directions.
func (s *RelaySuite) TestScenarios() {
	content, err := os.ReadFile("relay-test-scenarios.yaml")
	s.Require().NoError(err, "failed to read relay-test-scenarios.yaml")

	var file scenarioFile
	s.Require().NoError(yaml.Unmarshal(content, &file))
	s.Require().NotEmpty(file.Scenarios)

	for _, sc := range file.Scenarios {
		s.Run(sc.Name, func() {
			data, err := sc.payload()
			s.Require().NoError(err)

			asserter := testutils.NewStreamAsserter(s.T())

			// Host → child.
			go s.writeChunked(s.hostWrite, data, sc.ChunkSize)
			asserter.AssertBytes(s.readN(s.slave, len(data)), data)

			// Child → host.
			go s.writeChunked(s.slave, data, sc.ChunkSize)
			asserter.AssertBytes(s.readN(s.hostRead, len(data)), data)
		})
	}
}

// writeChunked writes data in chunkSize pieces (everything at once when
// chunkSize is 0).
func (s *RelaySuite) writeChunked(f *os.File, data []byte, chunkSize int) {
	if chunkSize <= 0 {
		chunkSize = len(data)
	}
	f.SetWriteDeadline(time.Now().Add(ioDeadline))
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := f.Write(data[off:end]); err != nil {
			return
		}
	}
}
