package entity

import (
	"fmt"
	"strconv"

	"github.com/lbastigk/Nebulite-sub003/internal/dispatch"
)

// RegisterCommands adds the entity lifecycle commands to t.
func RegisterCommands(t *dispatch.Table) {
	t.Register("delete", func(env dispatch.Env, _ []string) error {
		return env.Self.SetBool(KeyDelete, true)
	})
	t.Register("reload", func(env dispatch.Env, _ []string) error {
		return env.Self.SetBool(KeyReload, true)
	})
	t.Register("position", func(env dispatch.Env, args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("%w: position <x> <y>", dispatch.ErrUsage)
		}
		x, errX := strconv.ParseFloat(args[0], 64)
		y, errY := strconv.ParseFloat(args[1], 64)
		if errX != nil || errY != nil {
			return fmt.Errorf("%w: position needs two numbers", dispatch.ErrUsage)
		}
		if err := env.Self.SetFloat(KeyPosX, x); err != nil {
			return err
		}
		return env.Self.SetFloat(KeyPosY, y)
	})
}
