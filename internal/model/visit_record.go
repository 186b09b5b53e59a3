package model

import (
	"time"
)

// VisitRecord 按 (短链接, 访客 IP) 聚合的访问统计
// IP 为空字符串的记录是创建短链接时写入的初始行
type VisitRecord struct {
	ID          uint       `gorm:"primarykey" json:"-"`
	ShortURL    string     `gorm:"size:255;not null;uniqueIndex:uk_visit_records_short_url_ip,priority:1" json:"shortUrl"`
	LongURL     string     `gorm:"type:text;not null" json:"longUrl"`
	VisitCount  int64      `gorm:"default:0;not null" json:"visitCount"`
	IP          string     `gorm:"size:64;not null;default:'';uniqueIndex:uk_visit_records_short_url_ip,priority:2" json:"ip"`
	LastVisited *time.Time `json:"lastVisited"`
}

func (VisitRecord) TableName() string {
	return "visit_records"
}
