/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"github.com/sirupsen/logrus"

	"github.com/ssargent/votable/cmd/votable/cmd"
	"github.com/ssargent/votable/pkg/di"
)

func main() {
	// Initialize dependency injection container
	container := di.NewContainer(logrus.StandardLogger())

	// Inject dependencies into cmd package
	cmd.SetContainer(container)

	cmd.Execute()
}
