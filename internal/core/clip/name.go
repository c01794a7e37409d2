package clip

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// IDLayout 片段 ID 与文件名前缀的时间格式
const IDLayout = "20060102_150405"

const nameSuffix = "_motion_clip"

// ArtifactName 片段文件名 <时间>_<采集源>_motion_clip.<扩展名>
func ArtifactName(t time.Time, sourceType, ext string) string {
	return fmt.Sprintf("%s_%s%s.%s", t.Format(IDLayout), sourceType, nameSuffix, strings.TrimPrefix(ext, "."))
}

// ParseArtifactName 解析文件名中的时间与采集源
func ParseArtifactName(name string) (time.Time, string, bool) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if !strings.HasSuffix(base, nameSuffix) || len(base) <= len(IDLayout)+1 {
		return time.Time{}, "", false
	}
	ts, err := time.ParseInLocation(IDLayout, base[:len(IDLayout)], time.Local)
	if err != nil {
		return time.Time{}, "", false
	}
	source := strings.TrimSuffix(base[len(IDLayout)+1:], nameSuffix)
	return ts, source, true
}

// LatestArtifact 目录中最新的片段文件，文件名按时间排序
func LatestArtifact(dir, sourceType, ext string) (string, error) {
	pattern := filepath.Join(dir, fmt.Sprintf("*_%s%s.%s", sourceType, nameSuffix, strings.TrimPrefix(ext, ".")))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", os.ErrNotExist
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
