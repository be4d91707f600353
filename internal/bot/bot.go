package bot

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/luxfi/log"

	"github.com/MikeLuu99/auction-arena/internal/auction"
	"github.com/MikeLuu99/auction-arena/internal/protocol"
	"github.com/MikeLuu99/auction-arena/pkg/models"
)

// Bot decides one bid per round from the view the arena sends
type Bot interface {
	Bid(ctx context.Context, req *protocol.BidRequest) (float64, error)
}

// Factory creates a fresh Bot for every auction. Bots that hold resources
// also implement io.Closer and are closed when their auction ends.
type Factory func() (Bot, error)

var builtins = map[string]Factory{
	"flat":      func() (Bot, error) { return &Flat{Amount: 10}, nil },
	"random":    func() (Bot, error) { return NewRandom(time.Now().UnixNano()), nil },
	"value":     func() (Bot, error) { return Value{}, nil },
	"collector": func() (Bot, error) { return Collector{}, nil },
}

// Names lists the built-in bots
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves a bot selector: a built-in name, exec:<path> for a child
// process speaking JSON lines, or llm:<model> for an OpenRouter model.
func Lookup(selector string, logger log.Logger) (Factory, error) {
	switch {
	case strings.HasPrefix(selector, "exec:"):
		path := strings.TrimPrefix(selector, "exec:")
		if path == "" {
			return nil, models.NewConfigError("exec bot needs a path")
		}
		return func() (Bot, error) { return StartExec(path, logger) }, nil

	case strings.HasPrefix(selector, "llm:"):
		model := strings.TrimPrefix(selector, "llm:")
		if model == "" {
			return nil, models.NewConfigError("llm bot needs a model name")
		}
		return func() (Bot, error) { return NewLLM(model, logger) }, nil
	}

	factory, ok := builtins[selector]
	if !ok {
		return nil, models.NewConfigError("unknown bot %q (built-in bots: %s)", selector, strings.Join(Names(), ", "))
	}
	return factory, nil
}

// AsBidder lets a Bot play in a local auction.Referee
func AsBidder(b Bot) auction.Bidder {
	return auction.BidderFunc(func(ctx context.Context, snap auction.Snapshot, self models.ParticipantID) (float64, error) {
		req := protocol.NewBidRequest(snap, self)
		return b.Bid(ctx, &req)
	})
}

// Flat bids the same amount every round while it can afford it
type Flat struct {
	Amount float64
}

func (f *Flat) Bid(_ context.Context, req *protocol.BidRequest) (float64, error) {
	return min(f.Amount, req.MyDetails.Budget), nil
}

// Random bids uniformly up to a tenth of its remaining budget
type Random struct {
	rng *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Bid(_ context.Context, req *protocol.BidRequest) (float64, error) {
	return r.rng.Float64() * req.MyDetails.Budget / 10, nil
}

// Value spreads its budget over the value still to be auctioned, so every
// painting gets a share proportional to its artist value.
type Value struct{}

func (Value) Bid(_ context.Context, req *protocol.BidRequest) (float64, error) {
	remaining := 0
	for i := req.RoundIndex; i < req.RoundLimit && i < len(req.PaintingOrder); i++ {
		remaining += req.ArtistsAndValues[req.PaintingOrder[i]]
	}
	if remaining == 0 {
		return 0, nil
	}
	value := req.ArtistsAndValues[req.CurrentPainting]
	return req.MyDetails.Budget * float64(value) / float64(remaining), nil
}

// Collector only bids on artists its target collection still needs and
// splits its budget evenly among the missing paintings, or among the rounds
// left when fewer rounds than missing paintings remain.
type Collector struct{}

func (Collector) Bid(_ context.Context, req *protocol.BidRequest) (float64, error) {
	counts := req.PaintingCounts()
	missing := 0
	for artist, needed := range req.TargetCollection {
		if have := counts[artist]; have < needed {
			missing += needed - have
		}
	}
	needed := req.TargetCollection[req.CurrentPainting] - counts[req.CurrentPainting]
	if missing == 0 || needed <= 0 {
		return 0, nil
	}
	shares := min(missing, max(req.RoundsLeft(), 1))
	return req.MyDetails.Budget / float64(shares), nil
}

// Describe renders a bot for logs
func Describe(b Bot) string {
	return fmt.Sprintf("%T", b)
}
