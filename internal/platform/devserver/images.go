package devserver

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	errImageNotFound   = errors.New("image not found")
	errImageTooLarge   = errors.New("image exceeds maximum allowed size")
	errNotAnImage      = errors.New("uploaded file is not an image")
	errMissingFileName = errors.New("file name is required")
)

// MaxImageSize bounds a single stored upload (20 MB).
const MaxImageSize = 20 << 20

// Labels are the classes the inference endpoint can return.
var Labels = []string{
	"Choroidal Neovascularization",
	"Diabetic Macular Edema",
	"Drusen",
	"Normal",
}

type imageMeta struct {
	Name        string
	FileName    string
	ContentType string
	Size        int64
	Hash        [sha256.Size]byte
	CreatedAt   time.Time
}

type storedImage struct {
	meta    imageMeta
	content []byte
}

// imageStore keeps uploaded images in memory under "<uuid>_<filename>".
type imageStore struct {
	mu     sync.RWMutex
	images map[string]*storedImage
}

func newImageStore() *imageStore {
	return &imageStore{images: make(map[string]*storedImage)}
}

// save reads the upload, checks it sniffs as an image and stores it.
func (s *imageStore) save(fileName string, content io.Reader, now time.Time) (imageMeta, error) {
	fileName = strings.TrimSpace(filepath.Base(fileName))
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		return imageMeta{}, errMissingFileName
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxImageSize+1))
	if err != nil {
		return imageMeta{}, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) > MaxImageSize {
		return imageMeta{}, errImageTooLarge
	}
	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return imageMeta{}, errNotAnImage
	}

	meta := imageMeta{
		Name:        uuid.NewString() + "_" + strings.ReplaceAll(fileName, " ", "_"),
		FileName:    fileName,
		ContentType: ct,
		Size:        int64(len(data)),
		Hash:        sha256.Sum256(data),
		CreatedAt:   now.UTC(),
	}

	s.mu.Lock()
	s.images[meta.Name] = &storedImage{meta: meta, content: data}
	s.mu.Unlock()
	return meta, nil
}

func (s *imageStore) get(name string) (imageMeta, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[name]
	if !ok {
		return imageMeta{}, nil, errImageNotFound
	}
	return img.meta, img.content, nil
}

// classify stands in for the model: the image hash picks the label and a
// confidence in [0.5, 1], rounded to two decimal places of a percentage.
func classify(hash [sha256.Size]byte) (string, float64) {
	label := Labels[int(hash[0])%len(Labels)]
	frac := float64(binary.BigEndian.Uint16(hash[1:3])) / math.MaxUint16
	pct := math.Round((50+frac*50)*100) / 100
	return label, pct / 100
}
