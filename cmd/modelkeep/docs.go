package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           modelkeep API
// @version         1.0
// @description     HTTP API for indexing local GGUF models and keeping one loaded.
//
// @contact.name   modelkeep maintainers
// @contact.url    https://github.com/your-org/modelkeep
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
