package txadmin

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Maxos-programming/txAdmin/bantemplate"
	"gopkg.in/yaml.v3"
)

// BanFile is a YAML-backed ledger of bans keyed by player identifier.
type BanFile struct {
	banList  map[string]bantemplate.BanRecord
	filePath string

	sync.Mutex
}

func NewBanFile(path string) (*BanFile, error) {
	bf := &BanFile{
		filePath: path,
		banList:  make(map[string]bantemplate.BanRecord),
	}

	err := bf.Load()

	return bf, err
}

// Load rereads the ledger file. On failure the current ledger is kept.
func (bf *BanFile) Load() error {
	bf.Lock()
	defer bf.Unlock()

	banList, err := readBanList(bf.filePath)
	if err != nil {
		return err
	}
	bf.banList = banList

	return nil
}

// Reopen switches the ledger to the file at path and loads it. On failure the ledger
// keeps its current file and bans.
func (bf *BanFile) Reopen(path string) error {
	bf.Lock()
	defer bf.Unlock()

	banList, err := readBanList(path)
	if err != nil {
		return err
	}
	bf.filePath = path
	bf.banList = banList

	return nil
}

func readBanList(path string) (map[string]bantemplate.BanRecord, error) {
	banList := make(map[string]bantemplate.BanRecord)

	fh, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return banList, nil
		}
		return nil, err
	}
	defer func() { _ = fh.Close() }()

	decoder := yaml.NewDecoder(fh)
	if err := decoder.Decode(&banList); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	// A null document decodes to a nil map.
	if banList == nil {
		banList = make(map[string]bantemplate.BanRecord)
	}

	return banList, nil
}

// Add records a ban for identifier, replacing any earlier one.
func (bf *BanFile) Add(identifier string, record bantemplate.BanRecord) error {
	bf.Lock()
	defer bf.Unlock()

	bf.banList[identifier] = record

	return bf.writeFile()
}

// Remove lifts the ban on identifier. Removing an identifier that is not banned is a no-op.
func (bf *BanFile) Remove(identifier string) error {
	bf.Lock()
	defer bf.Unlock()

	if _, ok := bf.banList[identifier]; !ok {
		return nil
	}
	delete(bf.banList, identifier)

	return bf.writeFile()
}

// IsBanned reports whether identifier has a ban still in force at now. An expired ban
// stays in the ledger but no longer counts.
func (bf *BanFile) IsBanned(identifier string, now time.Time) (bool, *bantemplate.BanRecord) {
	bf.Lock()
	defer bf.Unlock()

	record, ok := bf.banList[identifier]
	if !ok {
		return false, nil
	}

	if record.Until != nil && !now.Before(*record.Until) {
		return false, nil
	}

	return true, &record
}

func (bf *BanFile) writeFile() error {
	out, err := yaml.Marshal(bf.banList)
	if err != nil {
		return err
	}

	return os.WriteFile(bf.filePath, out, 0644)
}
