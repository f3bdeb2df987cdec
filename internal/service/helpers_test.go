package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/DukeRupert/cropbatch/internal/session"
	"github.com/DukeRupert/cropbatch/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStorage(t *testing.T) *storage.LocalStorage {
	t.Helper()
	s, err := storage.NewLocalStorage(storage.LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost:8080/files",
	}, testLogger())
	require.NoError(t, err)
	return s
}

// gradient returns an image whose pixel (x, y) is {x, y, 0, 255}.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	return img
}

// noise returns a deterministic high-entropy image.
func noise(w, h int) *image.NRGBA {
	r := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	r.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func nrgbaAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

// recordingNotifier collects every notice sent to it.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (n *recordingNotifier) Notify(_ uuid.UUID, notice domain.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) all() []domain.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notice(nil), n.notices...)
}

// fixture wires the services against a temp directory.
type fixture struct {
	store    *session.Store
	storage  *storage.LocalStorage
	notifier *recordingNotifier
	intake   IntakeService
	sessions SessionService
	exports  ExportService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    session.NewStore(),
		storage:  newTestStorage(t),
		notifier: &recordingNotifier{},
	}
	codec := NewImagingCodec()
	f.intake = NewIntakeService(f.store, f.storage, codec, f.notifier, IntakeServiceConfig{MaxImageSize: 1 << 20}, testLogger())
	f.sessions = NewSessionService(f.store, f.storage, NewPreviewRenderer(codec), SessionServiceConfig{PreviewMaxSize: 64}, testLogger())
	f.exports = NewExportService(f.store, f.storage, codec, f.notifier, ExportServiceConfig{}, testLogger())
	return f
}

func pngFile(t *testing.T, name string, img image.Image) IncomingFile {
	t.Helper()
	return IncomingFile{
		Filename:    name,
		ContentType: "image/png",
		Data:        bytes.NewReader(pngBytes(t, img)),
	}
}

// drop creates a session and accepts files into it.
func (f *fixture) drop(t *testing.T, files ...IncomingFile) (*domain.Session, *IntakeResult) {
	t.Helper()
	sess := f.store.Create()

	result, err := f.intake.Accept(context.Background(), sess.ID, files)
	require.NoError(t, err)
	return sess, result
}
