// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
	wsync "github.com/tomtom215/wizarr/internal/sync"
)

var (
	_ suture.Service   = (*HTTPServerService)(nil)
	_ suture.Service   = (*SyncService)(nil)
	_ StartStopManager = (*wsync.Manager)(nil)
)

// fakeHTTPServer blocks in ListenAndServe until Shutdown, or fails at once
// when listenErr is set.
type fakeHTTPServer struct {
	listenErr   error
	shutdownErr error
	started     chan struct{}
	stop        chan struct{}
	shutdowns   atomic.Int32
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{started: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	select {
	case f.started <- struct{}{}:
	default:
	}
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	close(f.stop)
	return f.shutdownErr
}

// ============================================================================
// HTTPServerService
// ============================================================================

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	srv := newFakeHTTPServer()
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-srv.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if srv.shutdowns.Load() != 1 {
		t.Errorf("Shutdown calls = %d, want 1", srv.shutdowns.Load())
	}
}

func TestHTTPServerService_ListenFailure(t *testing.T) {
	srv := newFakeHTTPServer()
	srv.listenErr = errors.New("address already in use")
	svc := NewHTTPServerService(srv, 0)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, srv.listenErr) {
		t.Errorf("Serve() = %v, want wrapped listen error", err)
	}
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("default shutdown timeout = %v", svc.shutdownTimeout)
	}
}

// ============================================================================
// SyncService
// ============================================================================

type fakeManager struct {
	startErr error
	stopErr  error
	starts   atomic.Int32
	stops    atomic.Int32
}

func (m *fakeManager) Start(context.Context) error {
	m.starts.Add(1)
	return m.startErr
}

func (m *fakeManager) Stop() error {
	m.stops.Add(1)
	return m.stopErr
}

func TestSyncService_Lifecycle(t *testing.T) {
	m := &fakeManager{}
	svc := NewSyncService(m)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() = %v, want DeadlineExceeded", err)
	}
	if m.starts.Load() != 1 || m.stops.Load() != 1 {
		t.Errorf("starts=%d stops=%d, want 1/1", m.starts.Load(), m.stops.Load())
	}
}

func TestSyncService_StartFailure(t *testing.T) {
	m := &fakeManager{startErr: errors.New("boom")}
	err := NewSyncService(m).Serve(context.Background())
	if err == nil || !errors.Is(err, m.startErr) {
		t.Errorf("Serve() = %v, want wrapped start error", err)
	}
	if m.stops.Load() != 0 {
		t.Error("Stop must not be called when Start fails")
	}
}

func TestSyncService_StopFailure(t *testing.T) {
	m := &fakeManager{stopErr: errors.New("stuck")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewSyncService(m).Serve(ctx); !errors.Is(err, m.stopErr) {
		t.Errorf("Serve() = %v, want wrapped stop error", err)
	}
}
