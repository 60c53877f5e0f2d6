package inspector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleService = `package com.example.demo.service.impl;

import com.example.demo.entity.User;
import com.example.demo.mapper.UserMapper;
import com.example.demo.validator.UserValidator;
import org.springframework.stereotype.Service;

@Service
public class UserServiceImpl implements UserService {

    private final UserMapper userMapper;
    private final UserValidator userValidator;

    public UserServiceImpl(UserMapper userMapper, UserValidator userValidator) {
        this.userMapper = userMapper;
        this.userValidator = userValidator;
    }

    public User createUser(User user) {
        userValidator.checkEmail(user.getEmail());
        userMapper.insert(user);
        return user;
    }

    public User findById(Long id) {
        return userMapper.selectById(id);
    }

    private void audit(String action) {
        // internal bookkeeping
    }
}
`

func TestParseService(t *testing.T) {
	insp := New()
	defer insp.Close()

	src, err := insp.Parse(context.Background(), "UserServiceImpl.java", []byte(sampleService))
	require.NoError(t, err)

	t.Run("identity", func(t *testing.T) {
		assert.Equal(t, "com.example.demo.service.impl", src.Package)
		assert.Equal(t, "UserServiceImpl", src.ClassName)
		assert.Equal(t, "class", src.Kind)
	})

	t.Run("imports", func(t *testing.T) {
		assert.Contains(t, src.Imports, "com.example.demo.mapper.UserMapper")
		assert.Contains(t, src.Imports, "org.springframework.stereotype.Service")
	})

	t.Run("fields", func(t *testing.T) {
		require.Len(t, src.Fields, 2)
		assert.Equal(t, "userMapper", src.Fields[0].Name)
		assert.Equal(t, "UserMapper", src.Fields[0].Type)
	})

	t.Run("methods", func(t *testing.T) {
		names := make([]string, 0, len(src.Methods))
		for _, m := range src.Methods {
			names = append(names, m.Name)
		}
		assert.Contains(t, names, "createUser")
		assert.Contains(t, names, "findById")
		assert.Contains(t, names, "audit")
	})

	t.Run("visibility", func(t *testing.T) {
		pub := src.PublicMethods()
		pubNames := make([]string, 0, len(pub))
		for _, m := range pub {
			pubNames = append(pubNames, m.Name)
		}
		assert.Contains(t, pubNames, "createUser")
		assert.NotContains(t, pubNames, "audit")
	})

	t.Run("collaborator calls", func(t *testing.T) {
		var keys []string
		for _, c := range src.Calls {
			keys = append(keys, c.Receiver+"."+c.Method)
		}
		assert.Contains(t, keys, "userValidator.checkEmail")
		assert.Contains(t, keys, "userMapper.insert")
		assert.Contains(t, keys, "userMapper.selectById")
	})
}

func TestParseInterface(t *testing.T) {
	insp := New()
	defer insp.Close()

	source := `package com.example;
public interface OrderService {
    Order findOrder(Long id);
}
`
	src, err := insp.Parse(context.Background(), "OrderService.java", []byte(source))
	require.NoError(t, err)
	assert.Equal(t, "OrderService", src.ClassName)
	assert.Equal(t, "interface", src.Kind)
}

func TestParseNoClass(t *testing.T) {
	insp := New()
	defer insp.Close()

	_, err := insp.Parse(context.Background(), "Empty.java", []byte("package com.example;\n"))
	require.Error(t, err)
	var pe *ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestLoadRejectsNonJava(t *testing.T) {
	insp := New()
	defer insp.Close()

	_, err := insp.Load(context.Background(), "notes.txt")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Reason, ".java")
}

func TestLoadMissingFile(t *testing.T) {
	insp := New()
	defer insp.Close()

	_, err := insp.Load(context.Background(), filepath.Join(t.TempDir(), "Missing.java"))
	require.Error(t, err)
}

func TestMethodBodyTruncation(t *testing.T) {
	insp := New()
	defer insp.Close()

	var b strings.Builder
	b.WriteString("package com.example;\npublic class Big {\n    public void big() {\n")
	for i := 0; i < 200; i++ {
		b.WriteString("        System.out.println(\"line\");\n")
	}
	b.WriteString("    }\n}\n")

	src, err := insp.Parse(context.Background(), "Big.java", []byte(b.String()))
	require.NoError(t, err)
	require.Len(t, src.Methods, 1)
	assert.LessOrEqual(t, len(src.Methods[0].Body), maxMethodBodyChars+40)
	assert.Contains(t, src.Methods[0].Body, "truncated")
}

func TestExtractCallsSkipsStaticReceivers(t *testing.T) {
	calls := ExtractCalls(`
        userValidator.check(x);
        StringValidator.isBlank(y);
    `)
	require.Len(t, calls, 1)
	assert.Equal(t, "userValidator", calls[0].Receiver)
	assert.Equal(t, "validator", calls[0].Kind)
}

func TestRecommendTestType(t *testing.T) {
	cases := map[string]string{
		"UserServiceImpl": "integration",
		"UserController":  "integration",
		"UserMapper":      "unit",
		"UserValidator":   "unit",
		"PriceCalculator": "unit",
	}
	for class, want := range cases {
		assert.Equal(t, want, RecommendTestType(class), class)
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "User", BaseName("UserServiceImpl"))
	assert.Equal(t, "User", BaseName("UserService"))
	assert.Equal(t, "Order", BaseName("OrderController"))
	assert.Equal(t, "Invoice", BaseName("Invoice"))
	// A bare suffix keeps its name
	assert.Equal(t, "Service", BaseName("Service"))
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestDiscoverRelated(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"com/example/entity/UserEntity.java":      "public class UserEntity {}",
		"com/example/dto/User.java":               "public class User {}",
		"com/example/mapper/UserMapper.java":      "public interface UserMapper {}",
		"com/example/validator/UserValidator.java": "public class UserValidator {}",
		"com/example/service/OtherService.java":   "public interface OtherService {}",
	})

	src := &LoadedSource{
		ClassName: "UserServiceImpl",
		Path:      filepath.Join(root, "com/example/service/impl/UserServiceImpl.java"),
	}
	DiscoverRelated(src, root)

	assert.Contains(t, src.Related, "entity")
	assert.Contains(t, src.Related, "dto")
	assert.Contains(t, src.Related, "mapper")
	assert.Contains(t, src.Related, "validator")
	assert.NotContains(t, src.Related, "dao")
	assert.Contains(t, src.Related["entity"].Content, "class UserEntity")
	assert.Contains(t, src.Related["dto"].Content, "class User {")
}

func TestDiscoverRelatedTruncates(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"User.java": "public class User {" + strings.Repeat("// filler\n", 1000) + "}",
	})

	src := &LoadedSource{ClassName: "UserService", Path: filepath.Join(root, "UserService.java")}
	DiscoverRelated(src, root)

	require.Contains(t, src.Related, "dto")
	assert.LessOrEqual(t, len(src.Related["dto"].Content), maxRelatedFileChars+40)
}

func TestFindClass(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/UserService.java":     "",
		"a/b/UserServiceImpl.java": "",
		"a/OrderService.java":    "",
	})

	t.Run("exact", func(t *testing.T) {
		matches, err := FindClass(root, "UserService")
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.True(t, strings.HasSuffix(matches[0], "UserService.java"))
	})

	t.Run("substring", func(t *testing.T) {
		matches, err := FindClass(root, "serviceimpl")
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.True(t, strings.HasSuffix(matches[0], "UserServiceImpl.java"))
	})

	t.Run("no match", func(t *testing.T) {
		matches, err := FindClass(root, "Nothing")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}
