package agent

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bufbuild/connect-go"

	"github.com/gitgpt/gitgpt/internal/observability"
	"github.com/gitgpt/gitgpt/internal/rpc"
	"github.com/gitgpt/gitgpt/internal/rpc/connectjson"
)

// ConnectAnalyzeProcedure is the Connect route for the Analyze bidi stream.
const ConnectAnalyzeProcedure = "/gitgpt.agent.v1.AgentService/Analyze"

// NewConnectHandler builds a Connect bidi stream handler for Analyze.
func NewConnectHandler(runner Runner, metrics *observability.Metrics) (string, http.Handler) {
	h := &connectAnalyzeHandler{runner: runner, metrics: metrics}
	return ConnectAnalyzeProcedure, connect.NewBidiStreamHandler(ConnectAnalyzeProcedure, h.handle, connect.WithCodec(connectjson.Codec{}))
}

type connectAnalyzeHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

func (h *connectAnalyzeHandler) handle(ctx context.Context, stream *connect.BidiStream[rpc.AnalyzeStreamRequest, rpc.AnalyzeEvent]) error {
	h.metrics.IncActiveSessions("connect")
	defer h.metrics.DecActiveSessions("connect")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	first, err := stream.Receive()
	if err != nil {
		h.metrics.RecordTransportError("connect", "receive_first")
		return err
	}
	if first == nil || first.Analyze == nil {
		h.metrics.RecordTransportError("connect", "missing_analyze")
		return connect.NewError(connect.CodeInvalidArgument, errors.New("first message must include analyze payload"))
	}

	req := *first.Analyze
	fillIDs(&req)

	// A cancel message or a closed send side aborts the run.
	go func() {
		for {
			msg, recvErr := stream.Receive()
			if recvErr != nil {
				if !errors.Is(recvErr, context.Canceled) && !isEOF(recvErr) {
					h.metrics.RecordTransportError("connect", "receive_stream")
				}
				if !isEOF(recvErr) {
					cancel()
				}
				return
			}
			if msg != nil && msg.Cancel {
				cancel()
				return
			}
		}
	}()

	events, runErr := h.runner.Run(ctx, req)
	if runErr != nil {
		h.metrics.RecordTransportError("connect", "runner_error")
		return connect.NewError(connect.CodeInvalidArgument, runErr)
	}

	for ev := range events {
		if err := stream.Send(&ev); err != nil {
			h.metrics.RecordTransportError("connect", "send")
			cancel()
			for range events {
			}
			return err
		}
	}
	return nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
