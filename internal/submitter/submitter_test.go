package submitter

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/concordium/eur2ccd-service/internal/concordium"
	"github.com/concordium/eur2ccd-service/internal/governor"
	"github.com/concordium/eur2ccd-service/internal/history"
	"github.com/concordium/eur2ccd-service/internal/keysource"
	"github.com/concordium/eur2ccd-service/internal/ratio"
	"github.com/concordium/eur2ccd-service/internal/signing"
)

func bigRat(n int64) *big.Rat { return big.NewRat(n, 1) }

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

func writeFile(path string, data []byte) error { return os.WriteFile(path, data, 0o600) }

// startFakeNode runs a real gRPC server answering the three RPCs the
// submitter drives, exactly as internal/concordium's own test does —
// duplicated here (method paths hardcoded as literals, since the
// service-name constants are unexported in that package) so the
// submitter's orchestration can be exercised end to end without
// generated stubs.
func startFakeNode(t *testing.T, seq, numerator, denominator uint64, threshold int, accept bool) (addr string, stop func()) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		method, ok := grpc.MethodFromServerStream(stream)
		if !ok {
			return nil
		}
		switch method {
		case "/concordium.v2.Queries/GetBlockChainParameters":
			var req map[string]any
			if err := stream.RecvMsg(&req); err != nil {
				return err
			}
			return stream.SendMsg(&concordium.ChainParameters{
				MicroCCDPerEuroNumerator:   numerator,
				MicroCCDPerEuroDenominator: denominator,
				UpdateThreshold:            threshold,
			})
		case "/concordium.v2.Queries/GetNextUpdateSequenceNumber":
			var req map[string]any
			if err := stream.RecvMsg(&req); err != nil {
				return err
			}
			return stream.SendMsg(&struct {
				SequenceNumber uint64 `json:"sequenceNumber"`
			}{SequenceNumber: seq})
		case "/concordium.v2.UpdateInstructions/SubmitUpdateInstruction":
			var req map[string]any
			if err := stream.RecvMsg(&req); err != nil {
				return err
			}
			return stream.SendMsg(&struct {
				Accepted       bool   `json:"accepted"`
				DuplicateNonce bool   `json:"duplicateNonce"`
				RejectReason   string `json:"rejectReason,omitempty"`
			}{Accepted: accept, RejectReason: rejectReason(accept)})
		default:
			return nil
		}
	}))

	go srv.Serve(lis)
	return lis.Addr().String(), func() {
		srv.Stop()
		lis.Close()
	}
}

func rejectReason(accept bool) string {
	if accept {
		return ""
	}
	return "bad authorization"
}

func keyStore(t *testing.T, n int) *signing.KeyStore {
	t.Helper()
	var entries []map[string]string
	for i := 0; i < n; i++ {
		seed := make([]byte, 32)
		seed[0] = byte(i + 1)
		entries = append(entries, map[string]string{"seed": hexEncode(seed)})
	}
	data, err := json.Marshal(entries)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, writeFile(path, data))

	ks, err := signing.NewKeyStore(keysource.NewLocalFile([]string{path}))
	require.NoError(t, err)
	return ks
}

func histories(t *testing.T, vals ...int64) map[string]*history.SourceHistory {
	h := history.New("test-source", 10)
	for _, v := range vals {
		r, err := ratio.New(v, 100)
		require.NoError(t, err)
		h.Push(r, time.Now())
	}
	return map[string]*history.SourceHistory{"test-source": h}
}

func TestTickSubmitsOnOKClassification(t *testing.T) {
	// On-chain rate 1.0 (100/100); candidate from histories is 1.01
	// (101/100): well inside OK territory against default-style
	// thresholds.
	addr, stop := startFakeNode(t, 5, 100, 100, 1, true)
	defer stop()

	logger := zerolog.Nop()
	g := governor.New(governor.Thresholds{
		WarnUp: bigRat(30), HaltUp: bigRat(100),
		WarnDown: bigRat(15), HaltDown: bigRat(50),
	}, filepath.Join(t.TempDir(), "update.lockfile"), false)

	s := New(Config{
		Histories:      histories(t, 101),
		Chain:          concordium.New([]string{addr}, "token", logger),
		Governor:       g,
		Keys:           keyStore(t, 1),
		UpdateInterval: time.Second,
		Logger:         logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.tick(ctx)
	assert.False(t, g.DryRun())
}

func TestTickSkipsWhenNoReachableNode(t *testing.T) {
	logger := zerolog.Nop()
	g := governor.New(governor.Thresholds{
		WarnUp: bigRat(30), HaltUp: bigRat(100),
		WarnDown: bigRat(15), HaltDown: bigRat(50),
	}, filepath.Join(t.TempDir(), "update.lockfile"), false)

	s := New(Config{
		Histories:      histories(t, 101),
		Chain:          concordium.New([]string{"127.0.0.1:1"}, "token", logger),
		Governor:       g,
		Keys:           keyStore(t, 1),
		UpdateInterval: time.Second,
		Logger:         logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	s.tick(ctx) // must not panic; no assertions beyond "didn't block forever"
}

func TestTickEntersHaltAndStaysOneWay(t *testing.T) {
	// On-chain rate 1.0 (100/100); candidate 250/100 = 2.5, a 150%
	// increase, past halt_up=100.
	addr, stop := startFakeNode(t, 1, 100, 100, 1, true)
	defer stop()

	logger := zerolog.Nop()
	lockPath := filepath.Join(t.TempDir(), "update.lockfile")
	g := governor.New(governor.Thresholds{
		WarnUp: bigRat(30), HaltUp: bigRat(100),
		WarnDown: bigRat(15), HaltDown: bigRat(50),
	}, lockPath, false)

	s := New(Config{
		Histories:      histories(t, 250),
		Chain:          concordium.New([]string{addr}, "token", logger),
		Governor:       g,
		Keys:           keyStore(t, 1),
		UpdateInterval: time.Second,
		Logger:         logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.tick(ctx)
	assert.True(t, g.DryRun())

	// A later tick whose candidate (median of 2.5, 1.01, 1.01 = 1.01)
	// would be OK on its own still leaves the service in dry-run.
	for i := 0; i < 2; i++ {
		r, err := ratio.New(101, 100)
		require.NoError(t, err)
		s.cfg.Histories["test-source"].Push(r, time.Now())
	}
	s.tick(ctx)
	assert.True(t, g.DryRun())
	_, err := os.Stat(lockPath)
	assert.NoError(t, err)
}
