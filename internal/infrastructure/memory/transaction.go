package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/transaction"
)

var errTxDone = errors.New("トランザクションは既に終了しています")

// TxManager はインメモリストア用のトランザクションマネージャー
type TxManager struct {
	store *Store
}

func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin は新しいトランザクションを開始する
func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{store: m.store, held: make(map[string]chan struct{})}, nil
}

// tx は書き込みをコミットまで保留し、保持している公演ロックをコミット/ロールバック時に解放する
type tx struct {
	store   *Store
	held    map[string]chan struct{}
	pending []func(s *Store) error
	done    bool
}

func (t *tx) Commit() error {
	if t.done {
		return errTxDone
	}
	defer t.finish()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, op := range t.pending {
		if err := op(t.store); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.pending = nil
	for id, sem := range t.held {
		<-sem
		delete(t.held, id)
	}
}

// lock は公演のセマフォを取得する（同一トランザクション内では再入可能）
func (t *tx) lock(ctx context.Context, performanceID string, timeout time.Duration) error {
	if t.done {
		return errTxDone
	}
	if _, ok := t.held[performanceID]; ok {
		return nil
	}
	sem := t.store.semaphore(performanceID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
		t.held[performanceID] = sem
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: performance=%s", reservation.ErrLockTimeout, performanceID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func unwrap(txn transaction.Tx) (*tx, error) {
	t, ok := txn.(*tx)
	if !ok || t == nil {
		return nil, errors.New("インメモリストアのトランザクションではありません")
	}
	if t.done {
		return nil, errTxDone
	}
	return t, nil
}

var _ transaction.Manager = (*TxManager)(nil)
