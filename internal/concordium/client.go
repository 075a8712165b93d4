// Package concordium implements the gRPC v2 node client (part of C4):
// chain-parameters query, next-sequence-number query, and
// update-instruction broadcast, with ordered failover across multiple
// node endpoints inside a single per-tick deadline.
//
// The failover loop is grounded on the teacher's RPC-endpoint iteration
// in pkg/service/ctf_service.go ("for i, rpcURL := range
// chainConfig.RPCUrls { ... }"), adapted from ethclient.DialContext to
// grpc.NewClient since Concordium's node API is gRPC, not Ethereum
// JSON-RPC.
package concordium

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/concordium/eur2ccd-service/internal/signing"
)

const (
	queriesService = "concordium.v2.Queries"
	submitService  = "concordium.v2.UpdateInstructions"
)

// Client talks to an ordered list of node endpoints, retrying the next
// one on any transient failure within the caller's deadline.
type Client struct {
	nodes  []string
	token  string
	logger zerolog.Logger

	dial func(ctx context.Context, target string) (*grpc.ClientConn, error)
}

// New builds a Client for the given node list, in the order they
// should be tried each tick. token is attached as an rpc-admin
// credential per §6's rpc-token option.
func New(nodes []string, token string, logger zerolog.Logger) *Client {
	return &Client{
		nodes:  nodes,
		token:  token,
		logger: logger.With().Str("component", "concordium").Logger(),
		dial:   defaultDial,
	}
}

func defaultDial(_ context.Context, target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
}

// ErrNoReachableNode is returned when every configured node failed
// within the per-tick deadline; per §4.4 step 1 this is not a Halt
// condition, the caller simply skips the tick.
var ErrNoReachableNode = fmt.Errorf("concordium: no reachable node")

// FetchTickState queries the current chain parameters and next
// sequence number from the first node in the list that answers both
// calls successfully, trying subsequent nodes on any failure.
func (c *Client) FetchTickState(ctx context.Context) (params ChainParameters, sequenceNumber uint64, nodeUsed string, err error) {
	for i, node := range c.nodes {
		select {
		case <-ctx.Done():
			return ChainParameters{}, 0, "", ctx.Err()
		default:
		}

		p, seq, ferr := c.fetchFromNode(ctx, node)
		if ferr != nil {
			c.logger.Info().
				Err(ferr).
				Str("node", node).
				Int("attempt", i).
				Msg("node unreachable or erroring, trying next")
			continue
		}
		return p, seq, node, nil
	}
	return ChainParameters{}, 0, "", ErrNoReachableNode
}

func (c *Client) fetchFromNode(ctx context.Context, node string) (ChainParameters, uint64, error) {
	conn, err := c.dial(ctx, node)
	if err != nil {
		return ChainParameters{}, 0, fmt.Errorf("dialing %s: %w", node, err)
	}
	defer conn.Close()
	ctx = c.withAuth(ctx)

	var params ChainParameters
	if err := conn.Invoke(ctx, "/"+queriesService+"/GetBlockChainParameters",
		&getChainParametersRequest{BlockHashInput: "lastFinal"}, &params); err != nil {
		return ChainParameters{}, 0, fmt.Errorf("fetching chain parameters from %s: %w", node, err)
	}

	var seqResp nextSequenceNumberResponse
	if err := conn.Invoke(ctx, "/"+queriesService+"/GetNextUpdateSequenceNumber",
		&nextSequenceNumberRequest{}, &seqResp); err != nil {
		return ChainParameters{}, 0, fmt.Errorf("fetching sequence number from %s: %w", node, err)
	}

	return params, seqResp.SequenceNumber, nil
}

// SubmitResult reports what happened to a broadcast attempt.
type SubmitResult struct {
	Accepted bool
	// Duplicate is true when the node reports the sequence number was
	// already used; §4.4 step 7 treats this as success.
	Duplicate bool
	NodeUsed  string
}

// Submit broadcasts a signed update instruction against the given
// node. Unlike FetchTickState, Submit targets one specific node — the
// one that answered FetchTickState — rather than iterating the list
// again, since node state (sequence number) was read from it.
func (c *Client) Submit(ctx context.Context, node string, sequenceNumber uint64, numerator, denominator uint64, sigs []signing.Signature) (SubmitResult, error) {
	conn, err := c.dial(ctx, node)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("concordium: dialing %s: %w", node, err)
	}
	defer conn.Close()
	ctx = c.withAuth(ctx)

	payload := updateInstruction{
		EffectiveTime:              "immediate",
		SequenceNumber:             sequenceNumber,
		MicroCCDPerEuroNumerator:   numerator,
		MicroCCDPerEuroDenominator: denominator,
		Signatures:                 make([]instructionSig, len(sigs)),
	}
	for i, s := range sigs {
		payload.Signatures[i] = instructionSig{
			PublicKeyHex: hex.EncodeToString(s.PublicKey),
			SignatureHex: hex.EncodeToString(s.Signature),
		}
	}

	var resp submitResponse
	if err := conn.Invoke(ctx, "/"+submitService+"/SubmitUpdateInstruction", &payload, &resp); err != nil {
		return SubmitResult{}, fmt.Errorf("concordium: submitting to %s: %w", node, err)
	}

	if resp.DuplicateNonce {
		return SubmitResult{Accepted: true, Duplicate: true, NodeUsed: node}, nil
	}
	if !resp.Accepted {
		return SubmitResult{NodeUsed: node}, fmt.Errorf("concordium: chain rejected update: %s", resp.RejectReason)
	}
	return SubmitResult{Accepted: true, NodeUsed: node}, nil
}

// withAuth attaches the configured rpc-token as outgoing gRPC
// metadata, the admin credential the node's gRPC v2 interface expects.
func (c *Client) withAuth(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authentication", c.token)
}
