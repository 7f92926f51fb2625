package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/edvin/backupd/internal/model"
)

// ---------- Fake exporter ----------

type fakeExporter struct {
	containers []string
	listErr    error
	failOn     map[string]error
	data       map[string][]byte
	exported   []string
}

func (f *fakeExporter) ListTenantContainers(context.Context) ([]string, error) {
	return f.containers, f.listErr
}

func (f *fakeExporter) Export(_ context.Context, name, dir string) (string, error) {
	f.exported = append(f.exported, name)
	if err := f.failOn[name]; err != nil {
		return "", err
	}
	data, ok := f.data[name]
	if !ok {
		data = []byte("archive of " + name)
	}
	path := filepath.Join(dir, name+".tar.gz")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", err
	}
	return path, nil
}

// ---------- In-memory object store ----------

type memObject struct {
	data []byte
	date time.Time
}

type memStore struct {
	mu          sync.Mutex
	objects     map[string]memObject
	order       []string
	listErr     error
	uploadErr   map[string]error
	downloadErr map[string]error
	removeErr   error
	onUpload    func(localPath, remotePath string)
	uploads     []string
	downloads   []string
	removeCalls [][]string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]memObject{}, uploadErr: map[string]error{}, downloadErr: map[string]error{}}
}

func (s *memStore) put(path string, data []byte, date time.Time) {
	if _, ok := s.objects[path]; !ok {
		s.order = append(s.order, path)
	}
	s.objects[path] = memObject{data: data, date: date}
}

func (s *memStore) List(_ context.Context, prefix string) ([]model.SpacesObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.SpacesObject
	for _, p := range s.order {
		obj, ok := s.objects[p]
		if !ok || len(p) < len(prefix) || p[:len(prefix)] != prefix {
			continue
		}
		out = append(out, model.SpacesObject{Path: p, Size: int64(len(obj.data)), Date: obj.date})
	}
	return out, nil
}

func (s *memStore) Upload(_ context.Context, localPath, remotePath string) error {
	if s.onUpload != nil {
		s.onUpload(localPath, remotePath)
	}
	s.uploads = append(s.uploads, remotePath)
	if err := s.uploadErr[remotePath]; err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	s.put(remotePath, data, time.Now())
	return nil
}

func (s *memStore) Download(_ context.Context, remotePath, localPath string) error {
	s.downloads = append(s.downloads, remotePath)
	if err := s.downloadErr[remotePath]; err != nil {
		return err
	}
	obj, ok := s.objects[remotePath]
	if !ok {
		return fmt.Errorf("download %s: not found", remotePath)
	}
	return os.WriteFile(localPath, obj.data, 0600)
}

func (s *memStore) Remove(_ context.Context, remotePath string) error {
	delete(s.objects, remotePath)
	return nil
}

func (s *memStore) RemoveMany(_ context.Context, remotePaths []string) error {
	s.removeCalls = append(s.removeCalls, remotePaths)
	if s.removeErr != nil {
		return s.removeErr
	}
	for _, p := range remotePaths {
		delete(s.objects, p)
	}
	return nil
}

// ---------- Fake metrics ----------

type recordingMetrics struct {
	backups       []model.BackupResult
	retentions    []model.RetentionResult
	verifications []model.VerificationReport
}

func (m *recordingMetrics) ObserveBackup(r model.BackupResult)             { m.backups = append(m.backups, r) }
func (m *recordingMetrics) ObserveRetention(r model.RetentionResult)       { m.retentions = append(m.retentions, r) }
func (m *recordingMetrics) ObserveVerification(r model.VerificationReport) { m.verifications = append(m.verifications, r) }

// ---------- Archive helpers ----------

// validArchive returns a gzip stream of incompressible bytes, well above
// the minimum archive size.
func validArchive(seed int64) []byte {
	raw := make([]byte, 4096)
	rand.New(rand.NewSource(seed)).Read(raw)
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write(raw)
	gz.Close()
	return buf.Bytes()
}

var errBoom = errors.New("boom")
