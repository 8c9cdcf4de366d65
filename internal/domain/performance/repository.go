package performance

import "context"

// Repository は公演リポジトリのインターフェース
type Repository interface {
	// Create は公演と単価表を保存する
	Create(ctx context.Context, p *Performance) error

	// GetByID はIDから公演を取得する
	GetByID(ctx context.Context, id string) (*Performance, error)

	// ListByVenue は会場の公演一覧を取得する
	ListByVenue(ctx context.Context, venueID string, limit, offset int) ([]*Performance, error)
}
