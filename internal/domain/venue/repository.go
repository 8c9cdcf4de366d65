package venue

import "context"

// Repository は会場リポジトリのインターフェース
type Repository interface {
	// Create は会場と座席を保存する
	Create(ctx context.Context, v *Venue) error

	// GetByID はIDから会場を取得する
	GetByID(ctx context.Context, id string) (*Venue, error)

	// ListByBusinessUser は事業者の会場一覧を取得する
	ListByBusinessUser(ctx context.Context, businessUserID string, limit, offset int) ([]*Venue, error)
}
