package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TeacherLoginKey returns the cache key tracking a teacher's active login.
func (r *CacheKeyStruct) TeacherLoginKey(teacherID int) string {
	return fmt.Sprintf("login:teacher:%d", teacherID)
}

// TestQuestionsKey returns the cache key for a test's question payload.
func (r *CacheKeyStruct) TestQuestionsKey(testID string) string {
	return fmt.Sprintf("test:%s:questions", testID)
}

var CacheKey = NewCacheKeyStruct()
