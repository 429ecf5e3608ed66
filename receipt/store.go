package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vitwit/splitpay/types"
)

const DefaultStoreFileName = ".splitpay-receipts.json"

// FileStore persists receipts as a JSON document. It implements
// clients.ReceiptConsumer.
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	receipts map[string]*types.Receipt
}

type storeFile struct {
	Receipts map[string]*types.Receipt `json:"receipts"`
}

// NewFileStore opens the store at filePath, defaulting to the home directory.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultStoreFileName)
	}

	s := &FileStore{
		filePath: filePath,
		receipts: make(map[string]*types.Receipt),
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load receipts: %w", err)
	}

	return s, nil
}

func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to unmarshal receipts: %w", err)
	}
	if f.Receipts != nil {
		s.receipts = f.Receipts
	}
	return nil
}

// save writes through a temp file and renames it into place. Caller holds
// s.mu.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(storeFile{Receipts: s.receipts}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal receipts: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write receipts: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Consume stores r. Receipts are immutable, so storing an ID twice fails.
func (s *FileStore) Consume(_ context.Context, r *types.Receipt) error {
	if r == nil {
		return types.NewMissingFieldError("receipt")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.receipts[r.ID]; exists {
		return fmt.Errorf("receipt %s already stored", r.ID)
	}

	cp := *r
	s.receipts[r.ID] = &cp
	if err := s.save(); err != nil {
		delete(s.receipts, r.ID)
		return err
	}
	return nil
}

// Get returns the receipt with id.
func (s *FileStore) Get(id string) (*types.Receipt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.receipts[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// List returns all receipts, newest first.
func (s *FileStore) List() []*types.Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Receipt, 0, len(s.receipts))
	for _, r := range s.receipts {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FinalizedAt.After(out[j].FinalizedAt)
	})
	return out
}
