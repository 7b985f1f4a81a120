/*
Package s3 provides read access to objects in Amazon S3 and S3-compatible
stores.

A Backend is not bound to a bucket: every call names the bucket and key,
so a single backend serves every s3:// path a session touches.

	backend, err := s3.NewBackend(ctx, &s3.Config{
		Region:     "us-west-2",
		MaxRetries: 3,
	}, log)

	bucket, key, err := s3.ParseURI("s3://my-bucket/data/part-0.parquet")
	data, err := backend.GetObjectRange(ctx, bucket, key, 0, 4096)

# Configuration

Credentials come from the default AWS chain (environment, shared config,
instance role) unless AccessKeyID and SecretAccessKey are set. Endpoint and
ForcePathStyle point the client at MinIO, LocalStack and other compatible
services.

# Errors

Failures are returned as *errors.ObserveFSError with codes such as
OBJECT_NOT_FOUND, BUCKET_NOT_FOUND and ACCESS_DENIED. The SDK error is kept
as the cause.

# Circuit Breaker

With CircuitBreaker.Enabled, every request runs through a circuit.Breaker.
Consecutive transport or server failures open it and later requests fail
fast with CONNECTION_FAILED until the timeout elapses. Missing objects and
denied access do not count as failures.

# Testing

The client is reached through the API interface. Tests pass a fake to
NewBackendWithClient.
*/
package s3
