package minigame

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"

	"marketday/internal/bus"
	"marketday/internal/gameerr"
	"marketday/internal/store"
)

// ConsolationPrizeName/Value pad a deficit between packet count and
// participant count (§4.5 INIT). Not catalogue-backed — a fixed, documented
// fallback, recorded as an Open Question resolution in DESIGN.md.
const (
	ConsolationPrizeName  = "Consolation Prize"
	ConsolationPrizeValue = 1.0
)

func (e *Engine) initRedEnvelopeLocked(ctx context.Context) error {
	items, err := store.ListActiveRedEnvelopeItems(ctx, e.Store.Pool)
	if err != nil {
		return gameerr.Wrap(gameerr.StoreUnavailable, "failed to load red envelope items", err)
	}
	employees, err := store.ListEmployees(ctx, e.Store.Pool)
	if err != nil {
		return gameerr.Wrap(gameerr.StoreUnavailable, "failed to load employees", err)
	}

	participantIDs := make([]string, 0, len(employees))
	for _, u := range employees {
		participantIDs = append(participantIDs, u.ID)
	}

	var packets []Packet
	for _, it := range items {
		for i := 0; i < it.Amount; i++ {
			packets = append(packets, Packet{Name: it.Name, Type: it.Type, PrizeValue: it.PrizeValue})
		}
	}

	if deficit := len(participantIDs) - len(packets); deficit > 0 {
		for i := 0; i < deficit; i++ {
			packets = append(packets, Packet{Name: ConsolationPrizeName, Type: store.RedEnvelopeCash, PrizeValue: ConsolationPrizeValue})
		}
	} else if len(packets) > len(participantIDs) {
		packets = packets[:len(participantIDs)]
	}

	rand.Shuffle(len(packets), func(i, j int) { packets[i], packets[j] = packets[j], packets[i] })
	for i := range packets {
		packets[i].Index = i
	}

	e.runtime = Runtime{
		GameType:    store.MiniGameRedEnvelope,
		Phase:       PhaseIdle,
		RedEnvelope: &RedEnvelopePayload{Packets: packets, ParticipantIDs: participantIDs},
	}
	if err := e.persistLocked(ctx); err != nil {
		return err
	}
	e.broadcastSyncLocked(nil)
	return nil
}

func (e *Engine) startShuffleLocked(ctx context.Context) error {
	if err := e.requireGameType(store.MiniGameRedEnvelope); err != nil {
		return err
	}
	employees, err := store.ListEmployees(ctx, e.Store.Pool)
	if err != nil {
		return gameerr.Wrap(gameerr.StoreUnavailable, "failed to refresh employees", err)
	}
	ids := make([]string, 0, len(employees))
	for _, u := range employees {
		ids = append(ids, u.ID)
	}
	e.runtime.RedEnvelope.ParticipantIDs = ids
	e.runtime.Phase = PhaseShuffle

	if err := e.persistLocked(ctx); err != nil {
		return err
	}
	e.broadcastSyncLocked(nil)
	return nil
}

func (e *Engine) startGrabLocked(ctx context.Context) error {
	if err := e.requireGameType(store.MiniGameRedEnvelope); err != nil {
		return err
	}
	if err := e.requirePhase(PhaseShuffle); err != nil {
		return err
	}

	now := e.Now()
	end := now.Add(TotalPrepTime * time.Second)
	e.runtime.Phase = PhaseCountdown
	e.runtime.StartTime = &now
	e.runtime.EndTime = &end

	if err := e.persistLocked(ctx); err != nil {
		return err
	}
	e.broadcastSyncLocked(nil)
	e.scheduleLocked(e.onRedEnvelopeCountdownElapsed)
	return nil
}

func (e *Engine) onRedEnvelopeCountdownElapsed(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime.GameType != store.MiniGameRedEnvelope || e.runtime.Phase != PhaseCountdown {
		return
	}
	e.runtime.Phase = PhaseGaming
	e.runtime.EndTime = nil
	if err := e.persistLocked(ctx); err != nil {
		return
	}
	e.broadcastSyncLocked(nil)
}

// GrabPacket implements GRAB_PACKET(packetIndex): in GAMING, atomically
// claim one unclaimed packet per user.
func (e *Engine) GrabPacket(ctx context.Context, userID string, packetIndex int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireGameType(store.MiniGameRedEnvelope); err != nil {
		return err
	}
	if err := e.requirePhase(PhaseGaming); err != nil {
		return err
	}

	packets := e.runtime.RedEnvelope.Packets
	for _, p := range packets {
		if p.IsTaken && p.OwnerID == userID {
			return gameerr.New(gameerr.Conflict, "you already claimed a packet")
		}
	}
	if packetIndex < 0 || packetIndex >= len(packets) {
		return gameerr.Validationf("packet index out of range")
	}
	if packets[packetIndex].IsTaken {
		return gameerr.New(gameerr.Conflict, "packet already taken")
	}

	packets[packetIndex].IsTaken = true
	packets[packetIndex].OwnerID = userID

	if err := e.persistLocked(ctx); err != nil {
		return err
	}
	e.Bus.GlobalEmit(bus.EventMiniGameEvent, map[string]any{"type": "PACKET_TAKEN", "index": packetIndex, "userId": userID})
	e.broadcastSyncLocked(nil)
	return nil
}

func (e *Engine) revealResultLocked(ctx context.Context) error {
	if err := e.requireGameType(store.MiniGameRedEnvelope); err != nil {
		return err
	}
	if err := e.requirePhase(PhaseGaming); err != nil {
		return err
	}

	type winner struct {
		userID string
		amount float64
	}
	var winners []winner
	for _, p := range e.runtime.RedEnvelope.Packets {
		if p.IsTaken && p.Type == store.RedEnvelopeCash && p.PrizeValue > 0 {
			winners = append(winners, winner{userID: p.OwnerID, amount: p.PrizeValue})
		}
	}

	updated := make(map[string]store.User, len(winners))
	err := e.Store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, w := range winners {
			u, err := store.LockUserForUpdate(ctx, tx, w.userID)
			if err != nil {
				continue
			}
			u.Cash = store.Round2(u.Cash + w.amount)
			if err := store.SaveUserBalances(ctx, tx, u); err != nil {
				return err
			}
			updated[w.userID] = u
		}
		return nil
	})
	if err != nil {
		return gameerr.Wrap(gameerr.Internal, "failed to credit red envelope winners", err)
	}

	e.runtime.Phase = PhaseReveal
	if err := e.persistLocked(ctx); err != nil {
		return err
	}
	e.broadcastSyncLocked(nil)

	for userID, u := range updated {
		e.Bus.ToUser(userID, bus.EventAssetsUpdate, map[string]any{
			"cash": u.Cash, "stocks": u.Stocks, "debt": u.Debt, "dailyBorrowed": u.DailyBorrowed,
		})
	}
	return nil
}

// ScratchComplete marks the caller's packet scratched; when every taken
// packet has been scratched, ALL_SCRATCHED is broadcast globally.
func (e *Engine) ScratchComplete(ctx context.Context, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireGameType(store.MiniGameRedEnvelope); err != nil {
		return err
	}
	packets := e.runtime.RedEnvelope.Packets
	found := false
	for i := range packets {
		if packets[i].IsTaken && packets[i].OwnerID == userID {
			packets[i].IsScratched = true
			found = true
		}
	}
	if !found {
		return gameerr.New(gameerr.NotFound, "you have no packet to scratch")
	}

	if err := e.persistLocked(ctx); err != nil {
		return err
	}

	allScratched := true
	for _, p := range packets {
		if p.IsTaken && !p.IsScratched {
			allScratched = false
			break
		}
	}
	if allScratched {
		e.runtime.Phase = PhaseResult
		_ = e.persistLocked(ctx)
		e.Bus.GlobalEmit(bus.EventMiniGameEvent, map[string]any{"type": "ALL_SCRATCHED"})
	}
	return nil
}

func (e *Engine) forceRevealLocked(ctx context.Context) error {
	if err := e.requireGameType(store.MiniGameRedEnvelope); err != nil {
		return err
	}
	e.Bus.GlobalEmit(bus.EventMiniGameEvent, map[string]any{"type": "ALL_SCRATCHED"})
	return nil
}
