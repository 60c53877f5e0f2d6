package writer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const generated = "```java\n" + `package com.example.service;

import org.junit.jupiter.api.Test;
import static org.assertj.core.api.Assertions.assertThat;

class UserServiceImplTest {

    @Test
    void createUser_returnsSavedUser() {
        assertThat(1).isEqualTo(1);
    }
}
` + "```"

func TestStripFences(t *testing.T) {
	t.Run("java fence", func(t *testing.T) {
		code := StripFences(generated)
		assert.True(t, strings.HasPrefix(code, "package com.example.service;"))
		assert.NotContains(t, code, "```")
	})

	t.Run("bare fence", func(t *testing.T) {
		code := StripFences("```\nclass A {}\n```")
		assert.Equal(t, "class A {}", code)
	})

	t.Run("no fence", func(t *testing.T) {
		code := StripFences("  class A {}  ")
		assert.Equal(t, "class A {}", code)
	})

	t.Run("prose around fence", func(t *testing.T) {
		code := StripFences("Here is the test:\n```java\nclass A {}\n```\nLet me know!")
		assert.Equal(t, "class A {}", code)
	})
}

func TestTestClassName(t *testing.T) {
	assert.Equal(t, "UserServiceImplTest", TestClassName(StripFences(generated)))
	assert.Equal(t, "", TestClassName("not java at all"))
}

func TestOutputPath(t *testing.T) {
	path := OutputPath("src/test/java", "com.example.service", "UserServiceImplTest")
	assert.Equal(t, filepath.Join("src", "test", "java", "com", "example", "service", "UserServiceImplTest.java"), path)
}

func TestSave(t *testing.T) {
	root := t.TempDir()
	w := New(root)

	path, err := w.Save(generated, "com.example.service", "FallbackTest")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "com", "example", "service", "UserServiceImplTest.java"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "class UserServiceImplTest")
	assert.NotContains(t, string(data), "```")
	assert.True(t, strings.HasSuffix(string(data), "\n"))
}

func TestSaveRefusesShortCode(t *testing.T) {
	w := New(t.TempDir())
	_, err := w.Save("```java\nclass T {}\n```", "com.example", "TTest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to save")
}

func TestSaveFallbackClassName(t *testing.T) {
	root := t.TempDir()
	w := New(root)

	// Interface-style output without a class declaration
	code := strings.Repeat("// a line of setup notes with no declarations\n", 5)
	path, err := w.Save(code, "com.example", "OrderServiceTest")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "com", "example", "OrderServiceTest.java"), path)
}
