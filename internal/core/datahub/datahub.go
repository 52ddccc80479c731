// Package datahub downloads and caches named dataset archives.
package datahub

import (
	"context"
	"crypto/sha1"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"nli-data/internal/core/utils"
	"nli-data/internal/storage"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v2"
)

var (
	ErrUnknownDataset    = errors.New("unknown dataset")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrUnsupportedFormat = errors.New("unsupported archive format")
)

//go:embed datasets.yaml
var datasetsYAML []byte

type Entry struct {
	Name string
	URL  string
	SHA1 string
	// Folder, when set, is the directory inside the extracted archive that
	// DownloadExtract returns.
	Folder string
}

func (e Entry) Filename() string {
	return path.Base(e.URL)
}

type Registry map[string]Entry

func ParseRegistry(data []byte) (Registry, error) {
	raw := struct {
		BaseURL  string `yaml:"base_url"`
		Datasets []struct {
			Name   string `yaml:"name"`
			File   string `yaml:"file"`
			URL    string `yaml:"url,omitempty"`
			SHA1   string `yaml:"sha1"`
			Folder string `yaml:"folder,omitempty"`
		} `yaml:"datasets"`
	}{}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error parsing dataset registry: %w", err)
	}

	registry := make(Registry, len(raw.Datasets))
	for _, ds := range raw.Datasets {
		url := ds.URL
		if url == "" {
			if ds.File == "" {
				return nil, fmt.Errorf("dataset '%s' needs either a url or a file", ds.Name)
			}
			url = raw.BaseURL + ds.File
		}
		registry[ds.Name] = Entry{Name: ds.Name, URL: url, SHA1: ds.SHA1, Folder: ds.Folder}
	}
	return registry, nil
}

func DefaultRegistry() Registry {
	registry, err := ParseRegistry(datasetsYAML)
	if err != nil {
		panic(err)
	}
	return registry
}

const maxConcurrentDatasets = 256

type Hub struct {
	cacheDir string
	registry Registry
	client   *resty.Client

	// fetching and extracting a dataset is serialized per name
	locks *utils.MutexMap

	mirror       storage.Provider
	mirrorBucket string

	progress io.Writer
}

type Option func(*Hub)

func WithRegistry(registry Registry) Option {
	return func(h *Hub) { h.registry = registry }
}

// WithMirror makes the hub look for archives in an object store before going
// to the network, and upload archives it fetched over http.
func WithMirror(provider storage.Provider, bucket string) Option {
	return func(h *Hub) {
		h.mirror = provider
		h.mirrorBucket = bucket
	}
}

func WithHTTPClient(client *resty.Client) Option {
	return func(h *Hub) { h.client = client }
}

// WithProgress renders a download progress bar to w.
func WithProgress(w io.Writer) Option {
	return func(h *Hub) { h.progress = w }
}

func NewHub(cacheDir string, opts ...Option) *Hub {
	h := &Hub{
		cacheDir: cacheDir,
		registry: DefaultRegistry(),
		client:   resty.New(),
		locks:    utils.NewMutexMap(maxConcurrentDatasets),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) CacheDir() string {
	return h.cacheDir
}

func (h *Hub) Entry(name string) (Entry, error) {
	entry, ok := h.registry[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}
	return entry, nil
}

func fileSHA1(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha1.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func verify(filename, want string) error {
	if want == "" {
		return nil
	}
	got, err := fileSHA1(filename)
	if err != nil {
		return fmt.Errorf("error hashing %s: %w", filename, err)
	}
	if got != want {
		return fmt.Errorf("%w for %s: got %s, expected %s", ErrChecksumMismatch, filename, got, want)
	}
	return nil
}

func (h *Hub) lock(name string) (func(), error) {
	if err := h.locks.Lock(name); err != nil {
		return nil, fmt.Errorf("error locking dataset %s: %w", name, err)
	}
	return func() {
		if err := h.locks.Unlock(name); err != nil {
			slog.Error("error unlocking dataset", "dataset", name, "error", err)
		}
	}, nil
}

// Download returns the path of the cached archive for the named dataset,
// fetching it when the cache is missing or stale.
func (h *Hub) Download(ctx context.Context, name string) (string, error) {
	entry, err := h.Entry(name)
	if err != nil {
		return "", err
	}

	unlock, err := h.lock(name)
	if err != nil {
		return "", err
	}
	defer unlock()

	return h.download(ctx, entry)
}

func (h *Hub) download(ctx context.Context, entry Entry) (string, error) {
	name := entry.Name

	if err := os.MkdirAll(h.cacheDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("error creating cache dir %s: %w", h.cacheDir, err)
	}

	filename := filepath.Join(h.cacheDir, entry.Filename())
	if _, err := os.Stat(filename); err == nil {
		if err := verify(filename, entry.SHA1); err == nil {
			slog.Info("using cached dataset archive", "dataset", name, "path", filename)
			return filename, nil
		}
		slog.Warn("cached dataset archive is stale, downloading again", "dataset", name, "path", filename)
	}

	if h.mirror != nil {
		err := h.fetchFromMirror(ctx, entry, filename)
		if err == nil {
			return filename, nil
		}
		slog.Warn("unable to fetch dataset from mirror, falling back to http", "dataset", name, "error", err)
	}

	if err := h.fetchHTTP(ctx, entry, filename); err != nil {
		return "", err
	}

	if h.mirror != nil {
		h.uploadToMirror(ctx, entry, filename)
	}

	return filename, nil
}

func (h *Hub) fetchFromMirror(ctx context.Context, entry Entry, filename string) error {
	key := storage.ArchiveKey(entry.Filename())

	exists, err := h.mirror.ObjectExists(ctx, h.mirrorBucket, key)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s/%s", storage.ErrObjectNotFound, h.mirrorBucket, key)
	}

	tmp, err := os.CreateTemp(h.cacheDir, entry.Filename()+".*.part")
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}
	tmp.Close()
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := h.mirror.DownloadObject(ctx, h.mirrorBucket, key, tmp.Name()); err != nil {
		return err
	}

	if err := verify(tmp.Name(), entry.SHA1); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("error moving mirrored archive into place: %w", err)
	}

	slog.Info("fetched dataset archive from mirror", "dataset", entry.Name, "bucket", h.mirrorBucket, "key", key)
	return nil
}

func (h *Hub) uploadToMirror(ctx context.Context, entry Entry, filename string) {
	file, err := os.Open(filename)
	if err != nil {
		slog.Error("error opening archive for mirror upload", "path", filename, "error", err)
		return
	}
	defer file.Close()

	if err := h.mirror.CreateBucket(ctx, h.mirrorBucket); err != nil {
		slog.Error("error creating mirror bucket", "bucket", h.mirrorBucket, "error", err)
		return
	}

	if err := h.mirror.PutObject(ctx, h.mirrorBucket, storage.ArchiveKey(entry.Filename()), file); err != nil {
		slog.Error("error uploading archive to mirror", "dataset", entry.Name, "error", err)
	}
}

func (h *Hub) fetchHTTP(ctx context.Context, entry Entry, filename string) error {
	slog.Info("downloading dataset", "dataset", entry.Name, "url", entry.URL)

	res, err := h.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(entry.URL)
	if err != nil {
		return fmt.Errorf("error downloading %s: %w", entry.URL, err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.IsError() {
		return fmt.Errorf("error downloading %s: status %d", entry.URL, res.StatusCode())
	}

	tmp, err := os.CreateTemp(h.cacheDir, entry.Filename()+".*.part")
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	var dst io.Writer = tmp
	if h.progress != nil {
		bar := progressbar.NewOptions64(res.RawResponse.ContentLength,
			progressbar.OptionSetDescription("⏳ "+entry.Filename()),
			progressbar.OptionSetWriter(h.progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
		dst = io.MultiWriter(tmp, bar)
	}

	if _, err := io.Copy(dst, body); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing %s: %w", entry.Filename(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", tmp.Name(), err)
	}

	if err := verify(tmp.Name(), entry.SHA1); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("error moving download into place: %w", err)
	}

	slog.Info("downloaded dataset", "dataset", entry.Name, "path", filename)
	return nil
}

func archiveBase(filename string) (string, string) {
	for _, ext := range []string{".tar.gz", ".tgz", ".tar", ".zip"} {
		if strings.HasSuffix(filename, ext) {
			return strings.TrimSuffix(filename, ext), ext
		}
	}
	return filename, filepath.Ext(filename)
}

func extractedMarker(filename string) string {
	return filepath.Join(filepath.Dir(filename), "."+filepath.Base(filename)+".extracted")
}

// DownloadExtract downloads the named archive and extracts it next to the
// cached file. It returns the extracted dataset directory. An archive is only
// extracted again when its checksum differs from the one recorded at the last
// extraction.
func (h *Hub) DownloadExtract(ctx context.Context, name string) (string, error) {
	entry, err := h.Entry(name)
	if err != nil {
		return "", err
	}

	unlock, err := h.lock(name)
	if err != nil {
		return "", err
	}
	defer unlock()

	filename, err := h.download(ctx, entry)
	if err != nil {
		return "", err
	}

	baseDir := filepath.Dir(filename)
	dataDir, ext := archiveBase(filename)
	if entry.Folder != "" {
		dataDir = filepath.Join(baseDir, entry.Folder)
	}

	sum, err := fileSHA1(filename)
	if err != nil {
		return "", fmt.Errorf("error hashing %s: %w", filename, err)
	}

	marker := extractedMarker(filename)
	if recorded, err := os.ReadFile(marker); err == nil && string(recorded) == sum {
		if _, err := os.Stat(dataDir); err == nil {
			return dataDir, nil
		}
	}

	if err := extractAtomic(filename, ext, baseDir); err != nil {
		return "", fmt.Errorf("error extracting %s: %w", filename, err)
	}

	if err := writeAtomic(marker, []byte(sum)); err != nil {
		return "", fmt.Errorf("error recording extraction of %s: %w", filename, err)
	}

	slog.Info("extracted dataset archive", "dataset", name, "path", dataDir)
	return dataDir, nil
}
