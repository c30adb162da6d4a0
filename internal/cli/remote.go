package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/gitgpt/gitgpt/internal/agent"
	"github.com/gitgpt/gitgpt/internal/rpc"
	agentrpc "github.com/gitgpt/gitgpt/internal/rpc/agent"
	"github.com/gitgpt/gitgpt/internal/rpc/connectjson"
)

const analyzePath = "/agent/analyze"

// NewRemoteCmd runs an operation on a gitgptd daemon and streams its events.
func NewRemoteCmd(opts *Options) *cobra.Command {
	var (
		addr      string
		transport string
		sessionID string
		req       rpc.AnalyzeRequest
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "remote <scan|summarize|diagram|answer> [path|url]",
		Short: "Run an operation on the daemon and stream progress",
		Long: "Sends an Analyze request to gitgptd. The path is resolved on the daemon host. " +
			"Reuse --session to ask follow-up questions without rescanning.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			req.Operation = args[0]
			if len(args) > 1 {
				req.Root = args[1]
			}
			req.SessionID = sessionID
			if req.SessionID == "" {
				req.SessionID = uuid.NewString()
			}
			req.CorrelationID = uuid.NewString()

			if addr == "" {
				addr = cfg.Server.Addr
			}
			if transport == "" {
				transport = cfg.Server.Transport
			}

			r := &eventRenderer{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr(), quiet: quiet}
			fmt.Fprintf(r.errOut, "session %s\n", req.SessionID)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			baseURL := daemonURL(addr)
			switch strings.ToLower(strings.TrimSpace(transport)) {
			case "ndjson":
				return runNDJSON(ctx, baseURL+analyzePath, req, r)
			default:
				return runConnect(ctx, baseURL+agentrpc.ConnectAnalyzeProcedure, req, r)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon address (default: server.addr)")
	cmd.Flags().StringVar(&transport, "transport", "", "connect or ndjson (default: server.transport)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session to reuse; a new one is created when empty")
	cmd.Flags().StringVar(&req.Branch, "branch", "", "Branch to clone when the path is a git URL")
	cmd.Flags().StringVarP(&req.DiagramType, "type", "t", "", "Diagram type for the diagram operation")
	cmd.Flags().StringVar(&req.Focus, "focus", "", "Focus area for the diagram operation")
	cmd.Flags().StringVarP(&req.Question, "question", "q", "", "Question for the answer operation")
	cmd.Flags().BoolVar(&req.Refresh, "refresh", false, "Rescan even if the session already loaded this path")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Hide phase events")
	return cmd
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func runNDJSON(ctx context.Context, url string, reqBody rpc.AnalyzeRequest, r *eventRenderer) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var evt rpc.AnalyzeEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		r.render(evt)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return r.err
}

func runConnect(ctx context.Context, url string, reqBody rpc.AnalyzeRequest, r *eventRenderer) error {
	client := connect.NewClient[rpc.AnalyzeStreamRequest, rpc.AnalyzeEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.AnalyzeStreamRequest{Analyze: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	go func() {
		<-ctx.Done()
		_ = stream.Send(&rpc.AnalyzeStreamRequest{Cancel: true, SessionID: reqBody.SessionID, CorrelationID: reqBody.CorrelationID})
		_ = stream.CloseRequest()
	}()

	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		r.render(*evt)
	}
	_ = stream.CloseRequest()
	if err := stream.CloseResponse(); err != nil {
		return err
	}
	return r.err
}

// eventRenderer prints results to out and progress to errOut. The first error event is
// kept in err.
type eventRenderer struct {
	out    io.Writer
	errOut io.Writer
	quiet  bool
	err    error
}

func (r *eventRenderer) render(evt rpc.AnalyzeEvent) {
	switch evt.Type {
	case rpc.EventPhase:
		// done and failed are reported by the result or error event that follows.
		if !r.quiet && !evt.Phase.Terminal() {
			fmt.Fprintf(r.errOut, "[%s]\n", evt.Phase)
		}
	case rpc.EventScan:
		if evt.Scan != nil {
			fmt.Fprintf(r.errOut, "[scan] %s: %d files, %d excluded\n", evt.Root, evt.Scan.TotalFiles, evt.Scan.ExcludedFiles)
		}
	case rpc.EventResult:
		resp, err := decodeResult(evt.Kind, evt.Result)
		if err != nil {
			r.fail(err)
			return
		}
		if err := writeResponse(r.out, r.errOut, resp, "text"); err != nil {
			r.fail(err)
		}
	case rpc.EventError:
		r.fail(agent.ErrorResponse{ErrKind: evt.ErrorKind, Message: evt.Error})
	}
}

func (r *eventRenderer) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func decodeResult(kind string, raw json.RawMessage) (agent.Response, error) {
	var (
		resp agent.Response
		err  error
	)
	switch kind {
	case "summary":
		var v agent.Summary
		err = json.Unmarshal(raw, &v)
		resp = v
	case "diagram":
		var v agent.Diagram
		err = json.Unmarshal(raw, &v)
		resp = v
	case "answer":
		var v agent.Answer
		err = json.Unmarshal(raw, &v)
		resp = v
	default:
		return nil, fmt.Errorf("unknown result kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return resp, nil
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
