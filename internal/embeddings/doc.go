// Package embeddings provides the Adapter contract memories, projects,
// documents, code artifacts and entities are embedded through, plus
// concrete providers for local (FastEmbed/ONNX) and remote
// (OpenAI/TEI-compatible) inference.
package embeddings
