package utils

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

var (
	profileImgCollections = []string{"notionists-neutral", "adventurer-neutral", "fun-emoji"}
	profileImgSeeds       = []string{
		"Garfield", "Tinkerbell", "Annie", "Loki", "Cleo", "Angel", "Bob", "Mia", "Coco",
		"Gracie", "Bear", "Bella", "Abby", "Harley", "Cali", "Leo", "Luna", "Jack", "Felix", "Kiki",
	}
)

// RandomProfileImg 返回一个随机的 dicebear 默认头像
func RandomProfileImg() string {
	collection := profileImgCollections[rand.IntN(len(profileImgCollections))]
	seed := profileImgSeeds[rand.IntN(len(profileImgSeeds))]
	return fmt.Sprintf("https://api.dicebear.com/6.x/%s/svg?seed=%s", collection, seed)
}

// UsernameFromEmail 取邮箱 @ 之前的部分
func UsernameFromEmail(email string) string {
	return strings.SplitN(email, "@", 2)[0]
}

// RandomSuffix 返回 n 位随机十六进制串，n 不超过 32
func RandomSuffix(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}
