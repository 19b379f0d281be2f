package identity

import (
	"crypto/md5"
	"fmt"
	"strings"
)

const avatarSize = 80

// Avatar returns the provider avatar, or the Gravatar of the email when the
// provider sent none.
func (p Profile) Avatar() string {
	if url := strings.TrimSpace(p.AvatarURL); url != "" {
		return url
	}
	email := NormalizeEmail(p.Email)
	if email == "" {
		return ""
	}
	return gravatarURL(email, avatarSize)
}

func gravatarURL(email string, size int) string {
	hash := md5.Sum([]byte(email))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?s=%d&d=mp", hash, size)
}
