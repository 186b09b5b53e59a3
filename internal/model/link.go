package model

import (
	"time"
)

// Link 短链接记录，ShortURL 为域名前缀加短码（或别名）
type Link struct {
	ID           uint       `gorm:"primarykey" json:"-"`
	ShortCode    string     `gorm:"size:64;not null" json:"shortCode"`
	ShortURL     string     `gorm:"size:255;uniqueIndex;not null" json:"shortUrl"`
	LongURL      string     `gorm:"type:text;not null" json:"longUrl"`
	LongURLHash  string     `gorm:"size:64;index;not null" json:"-"`
	RequestLimit int64      `gorm:"default:0;not null" json:"requestLimit"`
	CreatedOn    time.Time  `gorm:"not null" json:"createdOn"`
	IsDeleted    bool       `gorm:"default:false;not null" json:"isDeleted"`
	DeletedOn    *time.Time `json:"deletedOn"`
	UpdatedAt    time.Time  `json:"-"`
}

// TableName 指定表名
func (Link) TableName() string {
	return "links"
}

// Unlimited 访问次数不受限制
func (l *Link) Unlimited() bool {
	return l.RequestLimit <= 0
}

// LimitReached 判断累计访问次数是否已达到上限
func (l *Link) LimitReached(totalVisits int64) bool {
	return !l.Unlimited() && totalVisits >= l.RequestLimit
}
