package prompt

import (
	"os"
	"os/user"
	"strings"

	"github.com/fatih/color"
)

// Env holds what prompt escapes expand to.
type Env struct {
	User string
	Host string
	Cwd  string
	Home string
	Root bool
}

// Current reads the environment of the running shell.
func Current() Env {
	env := Env{User: "username", Host: "hostname", Cwd: "~"}
	env.Home, _ = os.LookupEnv("HOME")

	if curUser, err := user.Current(); err == nil {
		env.User = curUser.Username
		env.Root = curUser.Uid == "0"
	}

	if curHostName, err := os.Hostname(); err == nil {
		env.Host, _, _ = strings.Cut(curHostName, ".")
	}

	if curCwd, err := os.Getwd(); err == nil {
		env.Cwd = curCwd
	}

	return env
}

// Render expands format. Supported escapes: \u user, \h host, \w working
// directory with the home prefix shortened to ~, \$ "#" for root or "$",
// and \\ a backslash. Anything else is copied as is.
func (e Env) Render(format string, colorize bool) string {
	userColor := painter(colorize, color.FgGreen, color.Bold)
	dirColor := painter(colorize, color.FgBlue, color.Bold)

	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '\\' || i+1 == len(format) {
			b.WriteByte(format[i])
			continue
		}

		i++
		switch format[i] {
		case 'u':
			b.WriteString(userColor(e.User))
		case 'h':
			b.WriteString(userColor(e.Host))
		case 'w':
			b.WriteString(dirColor(e.dir()))
		case '$':
			if e.Root {
				b.WriteByte('#')
			} else {
				b.WriteByte('$')
			}
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(format[i])
		}
	}

	return b.String()
}

func (e Env) dir() string {
	if e.Home == "" {
		return e.Cwd
	}
	if e.Cwd == e.Home {
		return "~"
	}
	if strings.HasPrefix(e.Cwd, e.Home+"/") {
		return "~" + strings.TrimPrefix(e.Cwd, e.Home)
	}
	return e.Cwd
}

func painter(colorize bool, attrs ...color.Attribute) func(string) string {
	if !colorize {
		return func(s string) string { return s }
	}

	c := color.New(attrs...)
	c.EnableColor()
	return func(s string) string { return c.Sprint(s) }
}
