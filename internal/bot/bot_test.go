package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/MikeLuu99/auction-arena/internal/auction"
	"github.com/MikeLuu99/auction-arena/internal/protocol"
	"github.com/MikeLuu99/auction-arena/pkg/models"
)

func testLogger() log.Logger {
	level, _ := log.ToLevel("debug")
	return log.NewTestLogger(level)
}

func request() *protocol.BidRequest {
	return &protocol.BidRequest{
		RoundIndex:       2,
		RoundLimit:       4,
		CurrentPainting:  "Van Gogh",
		PaintingOrder:    []string{"Picasso", "Picasso", "Van Gogh", "Da Vinci"},
		ArtistsAndValues: map[string]int{"Picasso": 2, "Van Gogh": 12, "Da Vinci": 7, "Rembrandt": 3},
		MyDetails:        protocol.PublicParticipant{ID: 1, Budget: 95, Paintings: []string{"Van Gogh"}},
		TargetCollection: map[string]int{"Van Gogh": 3, "Picasso": 1},
	}
}

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		factory, err := Lookup(name, testLogger())
		assert.NoError(t, err)
		b, err := factory()
		assert.NoError(t, err)
		amount, err := b.Bid(context.Background(), request())
		assert.NoError(t, err)
		check.GreaterThanOrEqual(t, amount, 0.0)
		check.True(t, amount <= 95)
	}

	_, err := Lookup("nope", testLogger())
	check.True(t, errors.Is(err, models.ErrConfig))
	_, err = Lookup("exec:", testLogger())
	check.True(t, errors.Is(err, models.ErrConfig))
	_, err = Lookup("llm:", testLogger())
	check.True(t, errors.Is(err, models.ErrConfig))
}

func TestBuiltins(t *testing.T) {
	ctx := context.Background()

	amount, err := (&Flat{Amount: 200}).Bid(ctx, request())
	assert.NoError(t, err)
	check.Equal(t, 95.0, amount)

	// 12 of the 19 value points left go on sale this round
	amount, err = Value{}.Bid(ctx, request())
	assert.NoError(t, err)
	check.Equal(t, 95.0*12/19, amount)

	// Three paintings missing but only two rounds left
	amount, err = Collector{}.Bid(ctx, request())
	assert.NoError(t, err)
	check.Equal(t, 95.0/2, amount)

	// Three paintings missing, one of them a Van Gogh
	long := request()
	long.RoundLimit = 10
	amount, err = Collector{}.Bid(ctx, long)
	assert.NoError(t, err)
	check.Equal(t, 95.0/3, amount)

	req := request()
	req.CurrentPainting = "Da Vinci"
	amount, err = Collector{}.Bid(ctx, req)
	assert.NoError(t, err)
	check.Equal(t, 0.0, amount)

	a, _ := NewRandom(1).Bid(ctx, request())
	b, _ := NewRandom(1).Bid(ctx, request())
	check.Equal(t, a, b)
	check.True(t, a <= 9.5)
}

func TestAsBidder(t *testing.T) {
	cfg := models.DefaultGameConfig()
	cfg.RoundLimit = 5
	cfg.PaintingOrder = []string{"Picasso", "Van Gogh", "Van Gogh", "Da Vinci", "Rembrandt"}

	ref := auction.NewReferee(map[models.ParticipantID]auction.Bidder{
		1: AsBidder(Value{}),
		2: AsBidder(&Flat{Amount: 50}),
	})
	a, err := ref.Run(context.Background(), "local", cfg, []models.Participant{{ID: 1}, {ID: 2}})
	assert.NoError(t, err)
	check.Equal(t, 5, len(a.History()))

	for _, p := range a.Participants() {
		check.False(t, p.Budget.IsNegative())
	}
}

func TestExec(t *testing.T) {
	path := writeScript(t, `while read line; do echo '{"bid": 7}'; done`)
	b, err := StartExec(path, testLogger())
	assert.NoError(t, err)
	defer b.Close()

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		amount, err := b.Bid(ctx, request())
		cancel()
		assert.NoError(t, err)
		check.Equal(t, 7.0, amount)
	}
}

func TestExec_LateAnswersAreSkipped(t *testing.T) {
	path := writeScript(t, `read line; sleep 0.3; echo 1
while read line; do echo 2; done`)
	b, err := StartExec(path, testLogger())
	assert.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, err = b.Bid(ctx, request())
	cancel()
	check.True(t, errors.Is(err, context.DeadlineExceeded))

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	amount, err := b.Bid(ctx, request())
	assert.NoError(t, err)
	check.Equal(t, 2.0, amount)
}

func TestExec_ProgramExits(t *testing.T) {
	path := writeScript(t, `exit 0`)
	b, err := StartExec(path, testLogger())
	assert.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = b.Bid(ctx, request())
	check.Error(t, err)
}

func TestParseBidLine(t *testing.T) {
	tests := []struct {
		line string
		want float64
		err  bool
	}{
		{line: "12.5", want: 12.5},
		{line: ` {"bid": 3} `, want: 3},
		{line: `{"amount": 3}`, err: true},
		{line: "ten", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			amount, err := parseBidLine(tt.line)
			if tt.err {
				check.True(t, errors.Is(err, protocol.ErrMalformedBid))
				return
			}
			assert.NoError(t, err)
			check.Equal(t, tt.want, amount)
		})
	}
}
