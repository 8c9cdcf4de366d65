package audit

import "time"

// Info は集約に埋め込む監査情報
// 値の設定は永続化層が行い、ドメインロジックは触らない
type Info struct {
	CreatedAt      time.Time
	CreatedBy      string
	LastModifiedAt time.Time
	LastModifiedBy string
}

// Created は新規作成時の監査情報を返す
func Created(by string, at time.Time) Info {
	return Info{
		CreatedAt:      at,
		CreatedBy:      by,
		LastModifiedAt: at,
		LastModifiedBy: by,
	}
}

// Touch は最終更新者と更新時刻を差し替えた監査情報を返す
func (i Info) Touch(by string, at time.Time) Info {
	i.LastModifiedAt = at
	if by != "" {
		i.LastModifiedBy = by
	}
	return i
}
