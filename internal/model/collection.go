package model

import "time"

// DefaultCollectionName はユーザーごとのデフォルトコレクションの名前。
const DefaultCollectionName = "Unlisted"

// Visibility はコレクションの公開範囲を表す。
type Visibility string

const (
	// VisibilityPrivate は所有者のみ閲覧可能。
	VisibilityPrivate Visibility = "private"
	// VisibilityPublic は全員が閲覧・評価・コメント可能。
	VisibilityPublic Visibility = "public"
)

// Valid はVisibilityが定義済みの値かどうかを返す。
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Scope はコレクションの管理主体を表す。
type Scope string

const (
	// ScopeUser はユーザーが作成したコレクション。
	ScopeUser Scope = "user"
	// ScopeSystem はシステムが作成するデフォルトコレクション。ユーザーごとに最大1件。
	ScopeSystem Scope = "system"
)

// Collection はユーザーが所有するメディアのコレクション。
type Collection struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Visibility  Visibility
	Scope       Scope
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsDefault はシステム管理のデフォルトコレクションかどうかを返す。
func (c *Collection) IsDefault() bool {
	return c.Scope == ScopeSystem
}

// CollectionBook はコレクションと書籍の紐付け。
// (CollectionID, BookID) はDB制約で一意。
type CollectionBook struct {
	ID           string
	CollectionID string
	BookID       string
	AddedAt      time.Time
}

// CollectionMovie はコレクションと映画の紐付け。
// (CollectionID, MovieID) はDB制約で一意。
type CollectionMovie struct {
	ID           string
	CollectionID string
	MovieID      string
	AddedAt      time.Time
}

// CollectionRating は公開コレクションに対するユーザーの評価（1〜5）。
type CollectionRating struct {
	ID           string
	CollectionID string
	UserID       string
	Score        int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CollectionComment は公開コレクションに対するコメント。
type CollectionComment struct {
	ID           string
	CollectionID string
	UserID       string
	AuthorName   string
	Body         string
	CreatedAt    time.Time
}
