package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/mattjoyce/testagent/internal/digest"
)

// UploadFile streams r to dest inside the workspace, creating parent
// directories on the agent.
func (s *Session) UploadFile(ctx context.Context, r io.Reader, dest string) error {
	id, err := s.Ready(ctx)
	if err != nil {
		return err
	}

	// The digest is computed as the body is read by the transport.
	dw := digest.NewWriter(io.Discard)
	body := io.TeeReader(r, dw)
	header, err := s.doUpload(ctx, id, dest, body)
	if err != nil {
		return err
	}
	if err := verifyDigest(header, dw.Sum()); err != nil {
		return fmt.Errorf("upload %s: %w", dest, err)
	}
	s.logger.Debug("uploaded file", "workspace_id", id, "path", dest, "bytes", dw.Len())
	return nil
}

func (s *Session) doUpload(ctx context.Context, id int, dest string, body io.Reader) (http.Header, error) {
	resp, err := s.do(ctx, http.MethodPost, s.workspacePath(id, "file"), url.Values{"path": {dest}}, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Header, nil
}

// UploadPath uploads the local file at localPath to dest.
func (s *Session) UploadPath(ctx context.Context, localPath, dest string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()
	return s.UploadFile(ctx, f, dest)
}

// Download streams the workspace file src into w.
func (s *Session) Download(ctx context.Context, src string, w io.Writer) error {
	id, err := s.Ready(ctx)
	if err != nil {
		return err
	}
	resp, err := s.do(ctx, http.MethodGet, s.workspacePath(id, "file"), url.Values{"path": {src}}, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dw := digest.NewWriter(w)
	if _, err := io.Copy(dw, resp.Body); err != nil {
		return fmt.Errorf("download %s: %w", src, err)
	}
	if err := verifyDigest(resp.Header, dw.Sum()); err != nil {
		return fmt.Errorf("download %s: %w", src, err)
	}
	return nil
}

// DownloadFile saves the workspace file src to localPath. A failed transfer
// leaves no file behind.
func (s *Session) DownloadFile(ctx context.Context, src, localPath string) (err error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(localPath), err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(localPath)
		}
	}()
	return s.Download(ctx, src, f)
}

func verifyDigest(h http.Header, got string) error {
	want := h.Get(digest.Header)
	if want == "" || want == got {
		return nil
	}
	return errors.Join(ErrDigestMismatch, fmt.Errorf("agent reported %s, local %s", want, got))
}
