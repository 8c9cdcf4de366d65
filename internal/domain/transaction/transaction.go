package transaction

import (
	"context"
	"errors"
)

// Tx は座席確保の排他区間を構成するトランザクション
// 実装はストレージごと（PostgreSQL / インメモリ）に差し替わる
type Tx interface {
	Commit() error
	Rollback() error
}

// Manager はトランザクションを開始する
type Manager interface {
	Begin(ctx context.Context) (Tx, error)
}

// Run は fn をトランザクション内で実行し、成功時のみコミットする
// fn がエラーを返すかパニックした場合はロールバックする
func Run(ctx context.Context, m Manager, fn func(tx Tx) error) (err error) {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && err != nil {
			err = errors.Join(err, rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	// コミットに失敗した場合もトランザクションは終了している
	finished = true
	return tx.Commit()
}
