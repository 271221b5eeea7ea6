package main

import (
	"errors"

	"github.com/trezcool/academia/core/credential"
)

const defaultKeyBytes = 32

var errNoEncoder = errors.New("an encryption key must be configured")

func (cli *commandLine) genKey(n int) error {
	key, err := credential.GenerateToken(n)
	if err != nil {
		return err
	}
	writeLine(cli.out, "%s", key)
	return nil
}

func (cli *commandLine) encrypt(val string) error {
	if cli.enc == nil {
		return errNoEncoder
	}
	envelope, err := cli.enc.Encrypt(val)
	if err != nil {
		return err
	}
	writeLine(cli.out, "%s", envelope)
	return nil
}

func (cli *commandLine) decrypt(envelope string) error {
	if cli.enc == nil {
		return errNoEncoder
	}
	val, err := cli.enc.Decrypt(envelope)
	if err != nil {
		return err
	}
	writeLine(cli.out, "%s", val)
	return nil
}
