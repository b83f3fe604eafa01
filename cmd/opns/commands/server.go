package commands

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"opns/internal/handler"
)

// callbackServer serves the checkout return URL while a command runs.
type callbackServer struct {
	srv  *http.Server
	ret  *handler.ReturnHandler
	errs chan error
}

func startCallbackServer() (*callbackServer, error) {
	returnPath := "/return"
	if u, err := url.Parse(cfg.Payment.ReturnURL); err == nil && u.Path != "" {
		returnPath = u.Path
	}

	ret := handler.NewReturnHandler(appCtx.Orchestrator, log)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.NewRouter(returnPath, ret, appCtx.Gatherer, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, err
	}

	cs := &callbackServer{srv: srv, ret: ret, errs: make(chan error, 1)}
	go func() {
		log.Info("Callback server started", map[string]interface{}{"address": srv.Addr})
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cs.errs <- err
		}
	}()
	return cs, nil
}

func (cs *callbackServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cs.srv.Shutdown(ctx); err != nil {
		log.Error("Callback server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}
}
