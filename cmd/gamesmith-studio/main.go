package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"gamesmith/studio/internal/appdirs"
	"gamesmith/studio/internal/envfile"
	"gamesmith/studio/internal/envutil"
	"gamesmith/studio/internal/errinfo"
	"gamesmith/studio/internal/logging"
	"gamesmith/studio/internal/metrics"
	"gamesmith/studio/internal/preview"
	"gamesmith/studio/internal/rpc"
	"gamesmith/studio/internal/studio"
)

func main() {
	envResult := envfile.Load()
	debug := envutil.Bool("GAMESMITH_DEBUG")
	logToFile := debug || envutil.Bool("GAMESMITH_LOG_TO_FILE")
	dataDir, err := appdirs.DataDir()
	if err != nil {
		log.Fatalf("studio init failed: %v", err)
	}
	logSetup, logErr := logging.NewFileLogger(dataDir, logToFile)
	logger := logSetup.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("component", "studio")
	if logSetup.Enabled {
		logger.Info("studio.logging_enabled", "path", logSetup.Path)
	}
	if envResult.Loaded {
		logger.Debug("studio.env_loaded", "path", envResult.Path, "keys", envResult.Keys)
	}
	if envResult.Err != nil {
		logger.Warn("studio.env_load_failed", "path", envResult.Path, "error", envResult.Err.Error())
	}
	if logErr != nil {
		logger.Warn("studio.log_setup_failed", "error", logErr.Error())
	}
	if logSetup.Close != nil {
		defer logSetup.Close()
	}

	eng, err := studio.New(studio.WithLogger(logger))
	if err != nil {
		logger.Error("studio.init_failed", "error", err.Error())
		log.Fatalf("studio init failed: %v", err)
	}
	defer eng.Close()

	server := rpc.NewServer(studio.APIVersion, os.Stdin, os.Stdout, logger)
	eng.SetNotifier(server.Notify)

	register := func(method string, fn func(context.Context, json.RawMessage) (any, *errinfo.ErrorInfo)) {
		server.Register(method, func(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
			result, errInfo := fn(ctx, params)
			if errInfo != nil {
				metrics.RecordRPCRequest(method, "error")
				msg := errInfo.ErrorCode
				if errInfo.Detail != "" {
					msg = errInfo.Detail
				}
				return nil, &rpc.Error{Message: msg, Data: errInfo}
			}
			metrics.RecordRPCRequest(method, "ok")
			return result, nil
		})
	}

	register("EngineGetInfo", eng.EngineGetInfo)
	register("ProvidersGetStatus", eng.ProvidersGetStatus)
	register("ProvidersSetApiKey", eng.ProvidersSetApiKey)
	register("ProvidersClearApiKey", eng.ProvidersClearApiKey)
	register("ProvidersValidate", eng.ProvidersValidate)
	register("ModelsListSupported", eng.ModelsListSupported)
	register("UserGetDefaultModel", eng.UserGetDefaultModel)
	register("UserSetDefaultModel", eng.UserSetDefaultModel)

	register("WorkspaceCreate", eng.WorkspaceCreate)
	register("WorkspaceList", eng.WorkspaceList)
	register("WorkspaceGet", eng.WorkspaceGet)
	register("WorkspaceSetActive", eng.WorkspaceSetActive)
	register("WorkspaceDelete", eng.WorkspaceDelete)
	register("WorkspaceSendPrompt", eng.WorkspaceSendPrompt)
	register("WorkspaceRetry", eng.WorkspaceRetry)
	register("WorkspaceRateMessage", eng.WorkspaceRateMessage)
	register("WorkspaceGetTurnDiff", eng.WorkspaceGetTurnDiff)

	register("PreviewBuild", eng.PreviewBuild)
	register("PreviewRefresh", eng.PreviewRefresh)
	register("PreviewGetDocument", eng.PreviewGetDocument)
	register("PreviewGetConsole", eng.PreviewGetConsole)
	register("PreviewClearConsole", eng.PreviewClearConsole)

	var previewServer *http.Server
	if addr := eng.PreviewAddr(); addr != "" {
		previewServer = &http.Server{
			Addr:    addr,
			Handler: preview.NewServer(eng.PreviewHost(), logger).Handler(),
		}
		go func() {
			logger.Info("preview.http_listening", "addr", addr)
			if err := previewServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("preview.http_server_error", "error", err.Error())
			}
		}()
	}

	err = server.Serve(context.Background())
	if previewServer != nil {
		previewServer.Close()
	}
	if err != nil {
		logger.Error("rpc.server_error", "error", err.Error())
		log.Fatalf("rpc server error: %v", err)
	}
}
