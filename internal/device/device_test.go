package device

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anime-shed/facescan-go/internal/repository"
	"github.com/anime-shed/facescan-go/internal/storage"
	"github.com/anime-shed/facescan-go/internal/workflow"
)

func TestInbox_StagedBeforePick(t *testing.T) {
	inbox := NewInbox()
	inbox.StagePick("album/cat.png")

	locator, err := inbox.Pick(context.Background(), workflow.ImageContent)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if locator != "album/cat.png" {
		t.Errorf("Expected staged locator, got %q", locator)
	}
}

func TestInbox_AnswerWhileWaiting(t *testing.T) {
	inbox := NewInbox()
	got := make(chan error, 1)
	go func() {
		_, err := inbox.Capture(context.Background())
		got <- err
	}()

	time.Sleep(10 * time.Millisecond)
	inbox.CancelCapture()

	select {
	case err := <-got:
		if !errors.Is(err, workflow.ErrCanceled) {
			t.Errorf("Expected ErrCanceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Capture did not return after cancel")
	}
}

func TestInbox_LatestAnswerWins(t *testing.T) {
	inbox := NewInbox()
	first := image.NewGray(image.Rect(0, 0, 1, 1))
	second := image.NewGray(image.Rect(0, 0, 2, 2))

	inbox.StageFrame(first)
	inbox.StageFrame(second)

	img, err := inbox.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if img != image.Image(second) {
		t.Error("Expected the most recently staged frame")
	}

	inbox.StagePick("a.png")
	inbox.CancelPick()
	if _, err := inbox.Pick(context.Background(), workflow.ImageContent); !errors.Is(err, workflow.ErrCanceled) {
		t.Errorf("Expected the cancel to replace the staged pick, got %v", err)
	}
}

func TestInbox_ContextEndsWait(t *testing.T) {
	inbox := NewInbox()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := inbox.Pick(ctx, workflow.ImageContent); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from Pick, got %v", err)
	}
	if _, err := inbox.Capture(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from Capture, got %v", err)
	}
}

func TestInbox_Discard(t *testing.T) {
	inbox := NewInbox()
	inbox.StagePick("a.png")
	inbox.StageFrame(image.NewGray(image.Rect(0, 0, 1, 1)))
	inbox.Discard()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := inbox.Pick(ctx, workflow.ImageContent); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected nothing staged after Discard, got %v", err)
	}
}

func TestPermissionStore(t *testing.T) {
	tests := []struct {
		name        string
		results     []workflow.GrantResult
		wantGranted bool
	}{
		{"Granted", []workflow.GrantResult{workflow.Granted}, true},
		{"Denied", []workflow.GrantResult{workflow.Denied}, false},
		{"Dismissed", nil, false},
		{"Mixed", []workflow.GrantResult{workflow.Granted, workflow.Denied}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewPermissionStore()
			if store.Check(workflow.PermissionCamera) {
				t.Fatal("Expected camera to start ungranted")
			}

			var answers [][]workflow.GrantResult
			respond := func(r []workflow.GrantResult) { answers = append(answers, r) }
			store.Request(workflow.PermissionCamera, respond)
			store.Request(workflow.PermissionCamera, respond)
			if !store.Pending(workflow.PermissionCamera) {
				t.Fatal("Expected a pending prompt")
			}

			if err := store.Answer(workflow.PermissionCamera, tt.results); err != nil {
				t.Fatalf("Answer: %v", err)
			}
			if len(answers) != 2 {
				t.Errorf("Expected both waiters to be answered, got %d", len(answers))
			}
			if store.Pending(workflow.PermissionCamera) {
				t.Error("Expected no pending prompt after answer")
			}
			if store.Check(workflow.PermissionCamera) != tt.wantGranted {
				t.Errorf("Expected granted=%v", tt.wantGranted)
			}
		})
	}
}

func TestPermissionStore_AnswerWithoutPrompt(t *testing.T) {
	store := NewPermissionStore()
	if err := store.Answer(workflow.PermissionCamera, []workflow.GrantResult{workflow.Granted}); !errors.Is(err, ErrNoHandoff) {
		t.Errorf("Expected ErrNoHandoff, got %v", err)
	}
	if store.Check(workflow.PermissionCamera) {
		t.Error("An unsolicited answer must not grant the permission")
	}
}

func TestPermissionStore_PreGrantedAndRevoke(t *testing.T) {
	store := NewPermissionStore(workflow.PermissionCamera)
	if !store.Check(workflow.PermissionCamera) {
		t.Fatal("Expected pre-granted camera")
	}
	store.Revoke(workflow.PermissionCamera)
	if store.Check(workflow.PermissionCamera) {
		t.Error("Expected revoke to withdraw the grant")
	}
}

func TestSnapshotCamera_Capture(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 6, 4))
	frame.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/snapshot.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	fetcher := storage.NewHTTPImageFetcher(5*time.Second, 1<<20)
	repo := repository.NewStorageImageRepository(nil, 1<<20)

	camera := NewSnapshotCamera(server.URL+"/snapshot.png", fetcher, repo)
	img, err := camera.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if img.Bounds().Dx() != 6 || img.Bounds().Dy() != 4 {
		t.Errorf("Unexpected frame size %v", img.Bounds())
	}

	missing := NewSnapshotCamera(server.URL+"/missing.png", fetcher, repo)
	if _, err := missing.Capture(context.Background()); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Errorf("Expected ErrObjectNotFound, got %v", err)
	}
}

func TestSnapshotCamera_RejectsNonImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>login required</html>"))
	}))
	defer server.Close()

	camera := NewSnapshotCamera(server.URL, storage.NewHTTPImageFetcher(5*time.Second, 1<<20),
		repository.NewStorageImageRepository(nil, 1<<20))
	if _, err := camera.Capture(context.Background()); !errors.Is(err, repository.ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}
