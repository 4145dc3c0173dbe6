package models

import (
	"time"

	"github.com/lib/pq"
)

type PersonalInfo struct {
	Fullname   string `gorm:"size:100;not null" bson:"fullname" json:"fullname"`
	Email      string `gorm:"uniqueIndex;not null" bson:"email" json:"email,omitempty"`
	Password   string `bson:"password,omitempty" json:"-"` // bcrypt hash, 空串表示 Google 账号
	Username   string `gorm:"uniqueIndex;size:100;not null" bson:"username" json:"username"`
	Bio        string `gorm:"size:200" bson:"bio" json:"bio"`
	ProfileImg string `bson:"profile_img" json:"profile_img"`
}

type SocialLinks struct {
	Youtube   string `bson:"youtube" json:"youtube"`
	Instagram string `bson:"instagram" json:"instagram"`
	Facebook  string `bson:"facebook" json:"facebook"`
	Twitter   string `bson:"twitter" json:"twitter"`
	Github    string `bson:"github" json:"github"`
	Website   string `bson:"website" json:"website"`
}

// AsMap 按平台名返回链接，用于逐个校验域名
func (s SocialLinks) AsMap() map[string]string {
	return map[string]string{
		"youtube":   s.Youtube,
		"instagram": s.Instagram,
		"facebook":  s.Facebook,
		"twitter":   s.Twitter,
		"github":    s.Github,
		"website":   s.Website,
	}
}

type AccountInfo struct {
	TotalPosts int64 `gorm:"default:0" bson:"total_posts" json:"total_posts"`
	TotalReads int64 `gorm:"default:0" bson:"total_reads" json:"total_reads"`
}

type User struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"_id"`
	PersonalInfo PersonalInfo   `gorm:"embedded;embeddedPrefix:personal_" bson:"personal_info" json:"personal_info"`
	SocialLinks  SocialLinks    `gorm:"embedded;embeddedPrefix:social_" bson:"social_links" json:"social_links"`
	AccountInfo  AccountInfo    `gorm:"embedded;embeddedPrefix:account_" bson:"account_info" json:"account_info"`
	GoogleAuth   bool           `gorm:"default:false" bson:"google_auth" json:"google_auth"`
	Blogs        pq.StringArray `gorm:"type:text[]" bson:"blogs" json:"blogs"`
	JoinedAt     time.Time      `bson:"joinedAt" json:"joinedAt"`
	UpdatedAt    time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// UserSummary 列表、评论、通知里附带的作者信息
type UserSummary struct {
	ID         string `json:"_id"`
	Fullname   string `json:"fullname"`
	Username   string `json:"username"`
	ProfileImg string `json:"profile_img"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:         u.ID,
		Fullname:   u.PersonalInfo.Fullname,
		Username:   u.PersonalInfo.Username,
		ProfileImg: u.PersonalInfo.ProfileImg,
	}
}
