package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// callRecord is one JSON line of a local harness calls file. Either payload
// or calldata must be present; calldata is unframed via ExtractPayload.
type callRecord struct {
	TxHash      common.Hash    `json:"txHash"`
	Submitter   common.Address `json:"submitter"`
	Payload     hexutil.Bytes  `json:"payload,omitempty"`
	Calldata    hexutil.Bytes  `json:"calldata,omitempty"`
	BlockNumber uint64         `json:"blockNumber"`
}

// FileSource reads calls from a JSON-lines file, the local stand-in for the
// on-chain event source. Blank lines and #-prefixed lines are skipped.
type FileSource struct {
	f       *os.File
	scanner *bufio.Scanner
	line    int
}

// OpenFile opens a JSON-lines calls file.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calls file: %w", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &FileSource{f: f, scanner: scanner}, nil
}

// Next yields the next call in file order.
func (s *FileSource) Next() (Call, bool, error) {
	for s.scanner.Scan() {
		s.line++
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var rec callRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return Call{}, false, fmt.Errorf("calls file line %d: %w", s.line, err)
		}
		payload := []byte(rec.Payload)
		if payload == nil && rec.Calldata != nil {
			var err error
			payload, err = ExtractPayload(rec.Calldata)
			if err != nil {
				return Call{}, false, fmt.Errorf("calls file line %d: %w", s.line, err)
			}
		}
		return Call{
			TxHash:      rec.TxHash,
			Submitter:   rec.Submitter,
			Payload:     payload,
			BlockNumber: rec.BlockNumber,
		}, true, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Call{}, false, err
	}
	return Call{}, false, nil
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	return s.f.Close()
}
